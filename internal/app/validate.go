package app

import (
	"net/http"
	"strings"
	"time"

	"pecel/api/internal/guard"
	"pecel/api/internal/store"
)

// FieldError is one entry in a VALIDATION_ERROR details list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var allowedAlamat = map[string]struct{}{
	"Kotamobagu Utara":   {},
	"Kotamobagu Selatan": {},
	"Kotamobagu Barat":   {},
	"Kotamobagu Timur":   {},
}

var allowedJenisDokumen = map[string]struct{}{
	"KTP":            {},
	"KIA":            {},
	"Kartu Keluarga": {},
	"Pindah Keluar":  {},
	"Pindah Datang":  {},
	"Akte Lahir":     {},
	"Akte Kematian":  {},
	"Akte Kawin":     {},
	"Akte Cerai":     {},
	"DLL":            {},
}

var allowedStatus = map[string]struct{}{
	store.StatusDiterima: {},
	store.StatusDiproses: {},
	store.StatusSelesai:  {},
	store.StatusDitunda:  {},
}

func validationError(fields []FieldError) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Data tidak valid", fields)
}

func validDate(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

// validEmail accepts the local@domain.tld shape the intake form produces. The
// store never relies on this beyond rejecting obvious typos.
func validEmail(value string) bool {
	at := strings.Index(value, "@")
	if at <= 0 || at == len(value)-1 {
		return false
	}
	domain := value[at+1:]
	dot := strings.LastIndex(domain, ".")
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}
	return !strings.ContainsAny(value, " \t")
}

func validNomorHP(value string) bool {
	if len(value) < 10 || len(value) > 15 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CreateDocumentInput is the request body for document creation. createdBy
// and namaCS are never read from the body; they come from the session.
type CreateDocumentInput struct {
	Tanggal       string `json:"tanggal"`
	Nama          string `json:"nama"`
	NomorHP       string `json:"nomorHP"`
	Email         string `json:"email"`
	Alamat        string `json:"alamat"`
	JenisDokumen  string `json:"jenisDokumen"`
	KeteranganDLL string `json:"keteranganDLL"`
	Status        string `json:"status"`
	Keterangan    string `json:"keterangan"`
	NamaOperator  string `json:"namaOperator"`
}

func validateCreateDocument(input CreateDocumentInput) []FieldError {
	var fields []FieldError

	if !validDate(input.Tanggal) {
		fields = append(fields, FieldError{"tanggal", "Format tanggal tidak valid"})
	}
	if strings.TrimSpace(input.Nama) == "" {
		fields = append(fields, FieldError{"nama", "Nama wajib diisi"})
	} else if len(input.Nama) > 100 {
		fields = append(fields, FieldError{"nama", "Nama terlalu panjang"})
	}
	if !validNomorHP(input.NomorHP) {
		fields = append(fields, FieldError{"nomorHP", "Nomor HP minimal 10 digit, maksimal 15 digit"})
	}
	if !validEmail(input.Email) {
		fields = append(fields, FieldError{"email", "Format email tidak valid"})
	}
	if _, ok := allowedAlamat[input.Alamat]; !ok {
		fields = append(fields, FieldError{"alamat", "Pilih kecamatan yang valid"})
	}
	if _, ok := allowedJenisDokumen[input.JenisDokumen]; !ok {
		fields = append(fields, FieldError{"jenisDokumen", "Pilih jenis dokumen yang valid"})
	} else if input.JenisDokumen == "DLL" && strings.TrimSpace(input.KeteranganDLL) == "" {
		fields = append(fields, FieldError{"keteranganDLL", "Keterangan DLL wajib diisi untuk jenis dokumen DLL"})
	}
	if input.Status != "" {
		if _, ok := allowedStatus[input.Status]; !ok {
			fields = append(fields, FieldError{"status", "Status tidak valid"})
		}
	}

	return fields
}

func validateDocumentPatch(patch store.DocumentPatch) []FieldError {
	var fields []FieldError

	if patch.Tanggal != nil && !validDate(*patch.Tanggal) {
		fields = append(fields, FieldError{"tanggal", "Format tanggal tidak valid"})
	}
	if patch.Nama != nil {
		if strings.TrimSpace(*patch.Nama) == "" {
			fields = append(fields, FieldError{"nama", "Nama wajib diisi"})
		} else if len(*patch.Nama) > 100 {
			fields = append(fields, FieldError{"nama", "Nama terlalu panjang"})
		}
	}
	if patch.NomorHP != nil && !validNomorHP(*patch.NomorHP) {
		fields = append(fields, FieldError{"nomorHP", "Nomor HP minimal 10 digit, maksimal 15 digit"})
	}
	if patch.Email != nil && !validEmail(*patch.Email) {
		fields = append(fields, FieldError{"email", "Format email tidak valid"})
	}
	if patch.Alamat != nil {
		if _, ok := allowedAlamat[*patch.Alamat]; !ok {
			fields = append(fields, FieldError{"alamat", "Pilih kecamatan yang valid"})
		}
	}
	if patch.JenisDokumen != nil {
		if _, ok := allowedJenisDokumen[*patch.JenisDokumen]; !ok {
			fields = append(fields, FieldError{"jenisDokumen", "Pilih jenis dokumen yang valid"})
		}
	}
	if patch.Status != nil {
		if _, ok := allowedStatus[*patch.Status]; !ok {
			fields = append(fields, FieldError{"status", "Status tidak valid"})
		}
	}

	return fields
}

// CreateUserInput is the request body for user creation.
type CreateUserInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func validateCreateUser(input CreateUserInput) []FieldError {
	var fields []FieldError

	if len(strings.TrimSpace(input.Username)) < 3 {
		fields = append(fields, FieldError{"username", "Username minimal 3 karakter"})
	} else if len(input.Username) > 50 {
		fields = append(fields, FieldError{"username", "Username terlalu panjang"})
	}
	if len(input.Password) < 6 {
		fields = append(fields, FieldError{"password", "Password minimal 6 karakter"})
	}
	if input.Role != "" && !guard.Valid(guard.Role(input.Role)) {
		fields = append(fields, FieldError{"role", "Pilih role yang valid"})
	}

	return fields
}

// UpdateUserInput is the request body for user updates; Password here is the
// plaintext replacement, hashed by the service before it reaches the store.
type UpdateUserInput struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

func validateUpdateUser(input UpdateUserInput) []FieldError {
	var fields []FieldError

	if input.Username != nil {
		if len(strings.TrimSpace(*input.Username)) < 3 {
			fields = append(fields, FieldError{"username", "Username minimal 3 karakter"})
		} else if len(*input.Username) > 50 {
			fields = append(fields, FieldError{"username", "Username terlalu panjang"})
		}
	}
	if input.Password != nil && len(*input.Password) < 6 {
		fields = append(fields, FieldError{"password", "Password minimal 6 karakter"})
	}
	if input.Role != nil && !guard.Valid(guard.Role(*input.Role)) {
		fields = append(fields, FieldError{"role", "Pilih role yang valid"})
	}

	return fields
}
