package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"pecel/api/internal/auth"
	"pecel/api/internal/guard"
	"pecel/api/internal/password"
	"pecel/api/internal/realtime"
	"pecel/api/internal/search"
	"pecel/api/internal/session"
	"pecel/api/internal/store"
	"pecel/api/internal/util"
)

// Session is the authenticated caller attached to a request.
type Session struct {
	Token     string
	UserID    string
	Username  string
	Role      guard.Role
	ExpiresAt time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error

	ListUsers(ctx context.Context) ([]store.User, error)
	GetUser(ctx context.Context, id string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	CreateUser(ctx context.Context, username, passwordHash, role string) (store.User, error)
	UpdateUser(ctx context.Context, id string, patch store.UserPatch) (store.User, error)
	DeleteUser(ctx context.Context, id string) (bool, error)

	ListDocuments(ctx context.Context) ([]store.Document, error)
	GetDocument(ctx context.Context, id int) (store.Document, error)
	CreateDocument(ctx context.Context, doc store.NewDocument) (store.Document, error)
	UpdateDocument(ctx context.Context, id int, patch store.DocumentPatch) (store.Document, error)
	DeleteDocument(ctx context.Context, id int) (bool, error)
}

type sessionStore interface {
	SaveSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

type broadcaster interface {
	BroadcastDocumentUpdate(document any)
	NotifyUser(userID string, notification realtime.Notification)
}

// SearchIndex is the optional Meilisearch acceleration for the list
// endpoint's free-text search. A nil index means in-memory filtering only.
type SearchIndex interface {
	FilterIDs(q string) ([]int, bool)
	IndexDocument(doc search.DocumentRecord)
	DeleteDocument(id int)
}

type Service struct {
	store      dataStore
	sessions   sessionStore
	hub        broadcaster
	index      SearchIndex
	secret     []byte
	sessionTTL time.Duration
}

func NewService(store dataStore, sessions sessionStore, hub broadcaster, index SearchIndex, secret string, sessionTTL time.Duration) *Service {
	return &Service{
		store:      store,
		sessions:   sessions,
		hub:        hub,
		index:      index,
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the first superadmin so a fresh install has an account that
// can manage users. A no-op when password is empty or the username is taken.
func (s *Service) Bootstrap(ctx context.Context, username, plaintext string) error {
	if plaintext == "" {
		return nil
	}
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("bootstrap lookup: %w", err)
	}
	hash, err := password.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("bootstrap hash: %w", err)
	}
	user, err := s.store.CreateUser(ctx, username, hash, string(guard.RoleSuperadmin))
	if err != nil {
		return fmt.Errorf("bootstrap create: %w", err)
	}
	log.Printf("bootstrap: created superadmin %q (%s), change the password after first login", user.Username, user.ID)
	return nil
}

// autoRemark is the keterangan written alongside a status when the caller
// does not supply one. DITUNDA is absent on purpose; it always needs a manual
// explanation.
func autoRemark(status string) string {
	switch status {
	case store.StatusDiterima:
		return "Menunggu Diproses"
	case store.StatusDiproses:
		return "Sedang Diproses"
	case store.StatusSelesai:
		return "Dokumen selesai"
	default:
		return ""
	}
}

// Login checks credentials and opens a server-side session. The error is the
// same for an unknown username and a wrong password.
func (s *Service) Login(ctx context.Context, username, plaintext string) (Session, store.User, error) {
	if strings.TrimSpace(username) == "" || plaintext == "" {
		return Session{}, store.User{}, domainError(http.StatusBadRequest, "INVALID_BODY", "Username dan password wajib diisi", nil)
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, store.User{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Username atau password salah", nil)
	}
	if err != nil {
		return Session{}, store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !password.Compare(plaintext, user.Password) {
		return Session{}, store.User{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Username atau password salah", nil)
	}

	expiresAt := time.Now().Add(s.sessionTTL)
	token, err := auth.IssueToken(s.secret, auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		Role:     user.Role,
		JTI:      util.NewID("jti"),
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, store.User{}, fmt.Errorf("issue token: %w", err)
	}
	if err := s.sessions.SaveSession(ctx, auth.HashToken(token), user, expiresAt); err != nil {
		return Session{}, store.User{}, fmt.Errorf("save session: %w", err)
	}

	user.Password = ""
	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      guard.Normalize(user.Role),
		ExpiresAt: expiresAt,
	}, user, nil
}

// Logout revokes the server-side session; the token is dead afterwards even
// though its signature is still valid.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.RevokeSession(ctx, auth.HashToken(token))
}

// SessionFromToken verifies the token signature, then checks the session is
// still live server-side.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.secret, token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.sessions.LookupSession(ctx, auth.HashToken(token))
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, session.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      guard.Normalize(user.Role),
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// CurrentUser loads the acting user's record.
func (s *Service) CurrentUser(ctx context.Context, sess Session) (store.User, error) {
	user, err := s.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, domainError(http.StatusNotFound, "NOT_FOUND", "User tidak ditemukan", nil)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("get user: %w", err)
	}
	user.Password = ""
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, sess Session) ([]store.User, error) {
	if decision := guard.CanManageUsers(sess.Role); !decision.Allowed {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", decision.Reason, nil)
	}
	return s.store.ListUsers(ctx)
}

// UserSummary is the trimmed record served to dropdown filters; it is the
// one user listing that does not require a session.
type UserSummary struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (s *Service) ListUsersByRole(ctx context.Context, role string) ([]UserSummary, error) {
	if !guard.Valid(guard.Role(role)) {
		return nil, domainError(http.StatusBadRequest, "INVALID_ROLE", "Role tidak valid", nil)
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]UserSummary, 0, len(users))
	for _, user := range users {
		if user.Role == role {
			summaries = append(summaries, UserSummary{Username: user.Username, Role: user.Role})
		}
	}
	return summaries, nil
}

func (s *Service) CreateUser(ctx context.Context, sess Session, input CreateUserInput) (store.User, error) {
	if decision := guard.CanManageUsers(sess.Role); !decision.Allowed {
		return store.User{}, domainError(http.StatusForbidden, "FORBIDDEN", decision.Reason, nil)
	}
	if fields := validateCreateUser(input); len(fields) > 0 {
		return store.User{}, validationError(fields)
	}

	role := string(guard.Normalize(input.Role))
	hash, err := password.Hash(input.Password)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, input.Username, hash, role)
	if errors.Is(err, store.ErrDuplicate) {
		return store.User{}, domainError(http.StatusConflict, "DUPLICATE_ENTRY", "Username sudah digunakan", nil)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	user.Password = ""
	return user, nil
}

func (s *Service) UpdateUser(ctx context.Context, sess Session, id string, input UpdateUserInput) (store.User, error) {
	if decision := guard.CanManageUsers(sess.Role); !decision.Allowed {
		return store.User{}, domainError(http.StatusForbidden, "FORBIDDEN", decision.Reason, nil)
	}
	if fields := validateUpdateUser(input); len(fields) > 0 {
		return store.User{}, validationError(fields)
	}

	patch := store.UserPatch{Username: input.Username, Role: input.Role}
	if input.Password != nil {
		hash, err := password.Hash(*input.Password)
		if err != nil {
			return store.User{}, fmt.Errorf("hash password: %w", err)
		}
		patch.Password = &hash
	}

	user, err := s.store.UpdateUser(ctx, id, patch)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, domainError(http.StatusNotFound, "NOT_FOUND", "User tidak ditemukan", nil)
	}
	if errors.Is(err, store.ErrDuplicate) {
		return store.User{}, domainError(http.StatusConflict, "DUPLICATE_ENTRY", "Username sudah digunakan", nil)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("update user: %w", err)
	}
	user.Password = ""
	return user, nil
}

func (s *Service) DeleteUser(ctx context.Context, sess Session, id string) error {
	decision := guard.CanDeleteUser(sess.Role, sess.UserID, id)
	if !decision.Allowed {
		status, code := http.StatusForbidden, "FORBIDDEN"
		if sess.UserID == id {
			status, code = http.StatusBadRequest, "SELF_DELETE"
		}
		return domainError(status, code, decision.Reason, nil)
	}

	deleted, err := s.store.DeleteUser(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "User tidak ditemukan", nil)
	}
	return nil
}

// DocumentFilter is the full query surface of the document list endpoint.
// Paginated is set when both page and limit were supplied; without it the
// endpoint returns the bare filtered array.
type DocumentFilter struct {
	Status         string
	JenisDokumen   string
	Alamat         string
	NamaCS         string
	NamaOperator   string
	TanggalMulai   string
	TanggalSelesai string
	Search         string
	SortBy         string
	SortOrder      string
	Page           int
	Limit          int
	Paginated      bool
}

// ListDocuments loads the collection and applies filters, search, sorting,
// and pagination in memory, matching the semantics of the dashboard's query
// parameters. When Meilisearch is healthy the free-text search is answered by
// the index; otherwise a substring scan over the loaded rows serves it.
func (s *Service) ListDocuments(ctx context.Context, filter DocumentFilter) (any, error) {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	documents = filterDocuments(documents, filter)

	if q := strings.TrimSpace(filter.Search); q != "" {
		documents = s.searchDocuments(documents, q)
	}

	documents = applySort(documents, filter.SortBy, filter.SortOrder)

	if filter.Paginated {
		return paginate(documents, filter.Page, filter.Limit), nil
	}
	return documents, nil
}

func filterDocuments(documents []store.Document, filter DocumentFilter) []store.Document {
	out := documents[:0:0]
	for _, doc := range documents {
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.JenisDokumen != "" && doc.JenisDokumen != filter.JenisDokumen {
			continue
		}
		if filter.Alamat != "" && doc.Alamat != filter.Alamat {
			continue
		}
		if filter.NamaCS != "" && !strings.Contains(strings.ToLower(doc.NamaCS), strings.ToLower(filter.NamaCS)) {
			continue
		}
		if filter.NamaOperator != "" && !strings.Contains(strings.ToLower(doc.NamaOperator), strings.ToLower(filter.NamaOperator)) {
			continue
		}
		if filter.TanggalMulai != "" && doc.Tanggal < filter.TanggalMulai {
			continue
		}
		if filter.TanggalSelesai != "" && doc.Tanggal > filter.TanggalSelesai {
			continue
		}
		out = append(out, doc)
	}
	return out
}

func (s *Service) searchDocuments(documents []store.Document, q string) []store.Document {
	if s.index != nil {
		if ids, ok := s.index.FilterIDs(q); ok {
			matched := make(map[int]struct{}, len(ids))
			for _, id := range ids {
				matched[id] = struct{}{}
			}
			out := documents[:0:0]
			for _, doc := range documents {
				if _, ok := matched[doc.ID]; ok {
					out = append(out, doc)
				}
			}
			return out
		}
	}

	lower := strings.ToLower(q)
	out := documents[:0:0]
	for _, doc := range documents {
		if strings.Contains(strings.ToLower(doc.Nama), lower) ||
			strings.Contains(strings.ToLower(doc.NomorRegister), lower) ||
			strings.Contains(strings.ToLower(doc.Email), lower) ||
			strings.Contains(doc.NomorHP, q) {
			out = append(out, doc)
		}
	}
	return out
}

func (s *Service) GetDocument(ctx context.Context, id int) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, domainError(http.StatusNotFound, "NOT_FOUND", "Dokumen tidak ditemukan", nil)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// CreateDocument validates the intake form, fills the session-derived fields,
// and inserts through the store's register-assignment protocol. The broadcast
// goes out only after the insert committed.
func (s *Service) CreateDocument(ctx context.Context, sess Session, input CreateDocumentInput) (store.Document, error) {
	if decision := guard.CanCreateDocument(sess.Role); !decision.Allowed {
		return store.Document{}, domainError(http.StatusForbidden, "FORBIDDEN", decision.Reason, nil)
	}
	if fields := validateCreateDocument(input); len(fields) > 0 {
		return store.Document{}, validationError(fields)
	}

	status := input.Status
	if status == "" {
		status = store.StatusDiterima
	}
	keterangan := input.Keterangan
	if keterangan == "" {
		keterangan = autoRemark(status)
	}
	if status == store.StatusDitunda && strings.TrimSpace(keterangan) == "" {
		return store.Document{}, validationError([]FieldError{
			{Field: "keterangan", Message: "Keterangan wajib diisi untuk status DITUNDA"},
		})
	}

	doc, err := s.store.CreateDocument(ctx, store.NewDocument{
		Tanggal:       input.Tanggal,
		Nama:          input.Nama,
		NomorHP:       input.NomorHP,
		Email:         input.Email,
		Alamat:        input.Alamat,
		JenisDokumen:  input.JenisDokumen,
		KeteranganDLL: input.KeteranganDLL,
		Status:        status,
		Keterangan:    keterangan,
		NamaCS:        sess.Username,
		NamaOperator:  input.NamaOperator,
		CreatedBy:     sess.UserID,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return store.Document{}, domainError(http.StatusConflict, "DUPLICATE_ENTRY", "Nomor register sudah digunakan", nil)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("create document: %w", err)
	}

	s.hub.BroadcastDocumentUpdate(doc)
	s.indexDocument(doc)
	return doc, nil
}

// UpdateDocument applies a partial update after the permission check. When
// the status changes the document owner is notified; broadcast and
// notification failures never fail the request.
func (s *Service) UpdateDocument(ctx context.Context, sess Session, id int, patch store.DocumentPatch) (store.Document, error) {
	if fields := validateDocumentPatch(patch); len(fields) > 0 {
		return store.Document{}, validationError(fields)
	}

	existing, err := s.GetDocument(ctx, id)
	if err != nil {
		return store.Document{}, err
	}

	decision := guard.CanUpdateDocument(sess.Role, sess.UserID, existing.CreatedBy, patch.Fields())
	if !decision.Allowed {
		var details any
		if len(decision.Fields) > 0 {
			details = map[string]any{"unauthorizedFields": decision.Fields}
		}
		return store.Document{}, domainError(http.StatusForbidden, "FORBIDDEN", decision.Reason, details)
	}

	if patch.Status != nil {
		if *patch.Status == store.StatusDitunda {
			if patch.Keterangan == nil || strings.TrimSpace(*patch.Keterangan) == "" {
				return store.Document{}, validationError([]FieldError{
					{Field: "keterangan", Message: "Keterangan wajib diisi untuk status DITUNDA"},
				})
			}
		} else if patch.Keterangan == nil {
			remark := autoRemark(*patch.Status)
			patch.Keterangan = &remark
		}
	}

	updated, err := s.store.UpdateDocument(ctx, id, patch)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, domainError(http.StatusNotFound, "NOT_FOUND", "Dokumen tidak ditemukan", nil)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("update document: %w", err)
	}

	s.hub.BroadcastDocumentUpdate(updated)
	if patch.Status != nil && *patch.Status != existing.Status {
		s.hub.NotifyUser(existing.CreatedBy, realtime.Notification{
			Type:       realtime.NotificationStatusChange,
			Message:    fmt.Sprintf("Status dokumen #%s berubah menjadi %s", existing.NomorRegister, *patch.Status),
			DocumentID: id,
			OldStatus:  existing.Status,
			NewStatus:  *patch.Status,
		})
	}
	s.indexDocument(updated)
	return updated, nil
}

func (s *Service) DeleteDocument(ctx context.Context, sess Session, id int) error {
	existing, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	decision := guard.CanDeleteDocument(sess.Role, sess.UserID, existing.CreatedBy)
	if !decision.Allowed {
		return domainError(http.StatusForbidden, "FORBIDDEN", decision.Reason, nil)
	}

	deleted, err := s.store.DeleteDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Dokumen tidak ditemukan", nil)
	}
	if s.index != nil {
		s.index.DeleteDocument(id)
	}
	return nil
}

// ReindexDocuments pushes the whole collection into the search index, used at
// startup so searches work after an index wipe.
func (s *Service) ReindexDocuments(ctx context.Context, bulk interface{ IndexDocuments([]search.DocumentRecord) }) error {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	records := make([]search.DocumentRecord, 0, len(documents))
	for _, doc := range documents {
		records = append(records, documentRecord(doc))
	}
	bulk.IndexDocuments(records)
	log.Printf("search: reindexed %d documents", len(records))
	return nil
}

func (s *Service) indexDocument(doc store.Document) {
	if s.index == nil {
		return
	}
	s.index.IndexDocument(documentRecord(doc))
}

func documentRecord(doc store.Document) search.DocumentRecord {
	return search.DocumentRecord{
		ID:            doc.ID,
		Nama:          doc.Nama,
		NomorRegister: doc.NomorRegister,
		Email:         doc.Email,
		NomorHP:       doc.NomorHP,
		Status:        doc.Status,
		JenisDokumen:  doc.JenisDokumen,
		Alamat:        doc.Alamat,
	}
}
