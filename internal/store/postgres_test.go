package store

import (
	"strings"
	"testing"
)

func strptr(s string) *string { return &s }

func TestBuildDocumentUpdateEmptyPatch(t *testing.T) {
	query, args := buildDocumentUpdate(1, DocumentPatch{})
	if query != "" || args != nil {
		t.Fatalf("expected empty query for empty patch, got %q %v", query, args)
	}
}

func TestBuildDocumentUpdateSingleField(t *testing.T) {
	query, args := buildDocumentUpdate(7, DocumentPatch{Status: strptr("DIPROSES")})
	if !strings.HasPrefix(query, "UPDATE documents SET status=$1 WHERE id=$2") {
		t.Fatalf("unexpected query: %q", query)
	}
	if len(args) != 2 || args[0] != "DIPROSES" || args[1] != 7 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildDocumentUpdateMultipleFields(t *testing.T) {
	query, args := buildDocumentUpdate(3, DocumentPatch{
		Status:       strptr("SELESAI"),
		Keterangan:   strptr("Dokumen selesai"),
		NamaOperator: strptr("budi"),
	})
	if !strings.Contains(query, "status=$1") ||
		!strings.Contains(query, "keterangan=$2") ||
		!strings.Contains(query, "nama_operator=$3") ||
		!strings.Contains(query, "WHERE id=$4") {
		t.Fatalf("unexpected query: %q", query)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %v", args)
	}
}

func TestBuildDocumentUpdateNeverTouchesRegister(t *testing.T) {
	query, _ := buildDocumentUpdate(3, DocumentPatch{
		Tanggal:       strptr("2025-01-01"),
		Nama:          strptr("x"),
		NomorHP:       strptr("0812345678"),
		Email:         strptr("x@y.z"),
		Alamat:        strptr("Kotamobagu Utara"),
		JenisDokumen:  strptr("KTP"),
		KeteranganDLL: strptr(""),
		Status:        strptr("DITERIMA"),
		Keterangan:    strptr("Menunggu Diproses"),
		NamaCS:        strptr("cs"),
		NamaOperator:  strptr(""),
	})
	// nomor_register is immutable once assigned; no patch may reach it
	if strings.Contains(query, "nomor_register") {
		t.Fatalf("patch reached nomor_register: %q", query)
	}
}

func TestDocumentPatchFields(t *testing.T) {
	patch := DocumentPatch{Status: strptr("DITUNDA"), Nama: strptr("rina")}
	fields := patch.Fields()
	if len(fields) != 2 || fields[0] != "nama" || fields[1] != "status" {
		t.Fatalf("Fields() = %v", fields)
	}
	if patch.IsEmpty() {
		t.Fatal("IsEmpty() = true for non-empty patch")
	}
	if !(DocumentPatch{}).IsEmpty() {
		t.Fatal("IsEmpty() = false for empty patch")
	}
}
