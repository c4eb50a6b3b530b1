// Package search indexes documents in Meilisearch so the list endpoint can
// match on names and register numbers with typo tolerance. The index is an
// acceleration layer only; Postgres stays the source of truth and callers
// fall back to an in-memory scan whenever Meilisearch is unavailable.
package search

import (
	"encoding/json"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxDocuments = "pecel_documents"

// DocumentRecord is the searchable projection of a document.
type DocumentRecord struct {
	ID            int    `json:"id"`
	Nama          string `json:"nama"`
	NomorRegister string `json:"nomorRegister"`
	Email         string `json:"email"`
	NomorHP       string `json:"nomorHP"`
	Status        string `json:"status"`
	JenisDokumen  string `json:"jenisDokumen"`
	Alamat        string `json:"alamat"`
}

// Meili keeps the document index in sync and answers search queries.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the document index.
// An unreachable server is not fatal; the health loop retries and the
// instance reports unhealthy until it recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxDocuments,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxDocuments, err)
	}

	index := m.client.Index(idxDocuments)
	filterable := []interface{}{"status", "jenisDokumen"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxDocuments, err)
	}
	searchable := []string{"nama", "nomorRegister", "email", "nomorHP", "alamat"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxDocuments, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// FilterIDs returns the document ids matching q, best match first. The
// second return is false when the index could not answer; the caller then
// filters in memory against Postgres rows instead.
func (m *Meili) FilterIDs(q string) ([]int, bool) {
	if !m.healthy.Load() {
		return nil, false
	}

	resp, err := m.client.Index(idxDocuments).Search(q, &meili.SearchRequest{
		Limit:                1000,
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		log.Printf("search: query %q: %v", q, err)
		m.healthy.Store(false)
		return nil, false
	}

	ids := make([]int, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		raw, ok := hit["id"]
		if !ok {
			continue
		}
		var id int
		if err := json.Unmarshal(raw, &id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, true
}

// IndexDocument adds or updates one document in the index. Failures are
// logged, not returned; indexing never blocks a write path.
func (m *Meili) IndexDocument(doc DocumentRecord) {
	if !m.healthy.Load() {
		return
	}
	if _, err := m.client.Index(idxDocuments).AddDocuments([]DocumentRecord{doc}, nil); err != nil {
		log.Printf("search: index document %d: %v", doc.ID, err)
	}
}

// IndexDocuments bulk-indexes documents, used when rebuilding the index at
// startup.
func (m *Meili) IndexDocuments(documents []DocumentRecord) {
	if len(documents) == 0 || !m.healthy.Load() {
		return
	}
	if _, err := m.client.Index(idxDocuments).AddDocuments(documents, nil); err != nil {
		log.Printf("search: bulk index %d documents: %v", len(documents), err)
	}
}

// DeleteDocument removes a document from the index.
func (m *Meili) DeleteDocument(id int) {
	if !m.healthy.Load() {
		return
	}
	if _, err := m.client.Index(idxDocuments).DeleteDocument(strconv.Itoa(id), nil); err != nil {
		log.Printf("search: delete document %d: %v", id, err)
	}
}
