package store

// User is an account that can sign in: intake staff (cs), back-office
// operators, or superadmins. Password holds the bcrypt hash and is never
// serialized.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
	Role     string `json:"role"`
}

// Document is one citizen request moving through the queue. Field names match
// the wire format the dashboard expects. Tanggal is the submission date in
// YYYY-MM-DD form.
type Document struct {
	ID            int    `json:"id"`
	Tanggal       string `json:"tanggal"`
	Nama          string `json:"nama"`
	NomorHP       string `json:"nomorHP"`
	Email         string `json:"email"`
	Alamat        string `json:"alamat"`
	NomorRegister string `json:"nomorRegister"`
	JenisDokumen  string `json:"jenisDokumen"`
	KeteranganDLL string `json:"keteranganDLL,omitempty"`
	Status        string `json:"status"`
	Keterangan    string `json:"keterangan"`
	NamaCS        string `json:"namaCS"`
	NamaOperator  string `json:"namaOperator"`
	CreatedBy     string `json:"createdBy"`
}

// Document statuses.
const (
	StatusDiterima = "DITERIMA"
	StatusDiproses = "DIPROSES"
	StatusSelesai  = "SELESAI"
	StatusDitunda  = "DITUNDA"
)

// NewDocument carries the validated fields for an insert. The register number
// is assigned by CreateDocument, never by the caller.
type NewDocument struct {
	Tanggal       string
	Nama          string
	NomorHP       string
	Email         string
	Alamat        string
	JenisDokumen  string
	KeteranganDLL string
	Status        string
	Keterangan    string
	NamaCS        string
	NamaOperator  string
	CreatedBy     string
}

// DocumentPatch is a partial update. Nil fields are left untouched; the field
// list drives both the permission check and the generated SQL.
type DocumentPatch struct {
	Tanggal       *string `json:"tanggal"`
	Nama          *string `json:"nama"`
	NomorHP       *string `json:"nomorHP"`
	Email         *string `json:"email"`
	Alamat        *string `json:"alamat"`
	JenisDokumen  *string `json:"jenisDokumen"`
	KeteranganDLL *string `json:"keteranganDLL"`
	Status        *string `json:"status"`
	Keterangan    *string `json:"keterangan"`
	NamaCS        *string `json:"namaCS"`
	NamaOperator  *string `json:"namaOperator"`
}

// Fields returns the wire names of the fields present in the patch, in the
// column order above.
func (p DocumentPatch) Fields() []string {
	var fields []string
	for _, col := range p.columns() {
		if col.value != nil {
			fields = append(fields, col.name)
		}
	}
	return fields
}

// IsEmpty reports whether the patch changes nothing.
func (p DocumentPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

type patchColumn struct {
	name   string // wire name
	column string // SQL column
	value  *string
}

func (p DocumentPatch) columns() []patchColumn {
	return []patchColumn{
		{"tanggal", "tanggal", p.Tanggal},
		{"nama", "nama", p.Nama},
		{"nomorHP", "nomor_hp", p.NomorHP},
		{"email", "email", p.Email},
		{"alamat", "alamat", p.Alamat},
		{"jenisDokumen", "jenis_dokumen", p.JenisDokumen},
		{"keteranganDLL", "keterangan_dll", p.KeteranganDLL},
		{"status", "status", p.Status},
		{"keterangan", "keterangan", p.Keterangan},
		{"namaCS", "nama_cs", p.NamaCS},
		{"namaOperator", "nama_operator", p.NamaOperator},
	}
}

// UserPatch is a partial user update; Password, when set, is already hashed.
type UserPatch struct {
	Username *string
	Password *string
	Role     *string
}
