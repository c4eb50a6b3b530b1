// Package register builds the human-readable register numbers printed on
// intake receipts, in the form SEQ/CODE/ROMAN-MONTH/YEAR (0007/001/III/2025).
// The sequence is always the store-assigned document id, never a counter of
// our own, so numbers stay unique under concurrent intake.
package register

import (
	"fmt"
	"time"
)

// documentCodes maps each service type to its three-digit register code.
var documentCodes = map[string]string{
	"KTP":            "001",
	"KIA":            "002",
	"Kartu Keluarga": "003",
	"Pindah Keluar":  "004",
	"Pindah Datang":  "005",
	"Akte Lahir":     "006",
	"Akte Kematian":  "007",
	"Akte Kawin":     "008",
	"Akte Cerai":     "009",
	"DLL":            "010",
}

// fallbackCode is the DLL code, used for any type not in the table.
const fallbackCode = "010"

var romanMonths = [12]string{"I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X", "XI", "XII"}

// DocumentCode returns the register code for a document type. Unknown types
// fall back to the DLL code rather than failing.
func DocumentCode(jenisDokumen string) string {
	if code, ok := documentCodes[jenisDokumen]; ok {
		return code
	}
	return fallbackCode
}

// RomanMonth returns the upper-case Roman numeral for the calendar month of t.
func RomanMonth(t time.Time) string {
	return romanMonths[int(t.Month())-1]
}

// Generate formats a register number from the store-assigned sequence, the
// document type and the submission date.
func Generate(sequence int, jenisDokumen string, tanggal time.Time) string {
	return fmt.Sprintf("%04d/%s/%s/%d", sequence, DocumentCode(jenisDokumen), RomanMonth(tanggal), tanggal.Year())
}
