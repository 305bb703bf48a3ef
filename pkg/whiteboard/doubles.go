package whiteboard

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi"
)

type entry struct {
	data      []byte
	timestamp time.Time
}

// category holds a sliding window of entries. base is the absolute index
// of entries[0]; trimming (Resize) only ever drops from the front, so
// absolute indices already handed out stay monotonic and comparable even
// after a trim.
type category struct {
	mu      sync.Mutex
	base    int
	entries []entry
}

// resolveIndex maps index i — an absolute index, or negative and counting
// from the tail of the current window — to a position in entries.
func resolveIndex(i, base, length int) int {
	if i < 0 {
		return length + i
	}
	return i - base
}

// Store is an in-memory stand-in for the §4.7 whiteboard service: an
// append-only, per-hashtag log with a monotonically increasing index and a
// server-stamped timestamp on every entry.
type Store struct {
	mu         sync.Mutex
	categories map[string]*category
}

// NewStore builds an empty in-memory whiteboard.
func NewStore() *Store {
	return &Store{categories: make(map[string]*category)}
}

func (s *Store) category(hashtag string) *category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[hashtag]
	if !ok {
		c = &category{}
		s.categories[hashtag] = c
	}
	return c
}

// Handler returns a chi-routed http.Handler implementing the §6.4 REST
// contract table over this store.
func (s *Store) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/post/{hashtag}", s.handlePost)
	r.Get("/get/{hashtag}/{index}", s.handleGetOne)
	r.Get("/get/{hashtag}/{start}/{stop}", s.handleGetRange)
	r.Get("/latest/{hashtag}", s.handleLatest)
	r.Get("/after/{hashtag}/{timestamp}", s.handleAfter)
	r.Get("/resize/{threshold}", s.handleResize)
	r.Get("/save", s.handleSave)
	r.Get("/save/{sync}", s.handleSave)
	r.Get("/info", s.handleInfo)
	return r
}

func (s *Store) handlePost(w http.ResponseWriter, r *http.Request) {
	hashtag := chi.URLParam(r, "hashtag")

	var body postRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	raw, err := base64.StdEncoding.DecodeString(body.Data)
	if err != nil {
		http.Error(w, "data is not valid base64", http.StatusBadRequest)
		return
	}

	cat := s.category(hashtag)
	cat.mu.Lock()
	idx := cat.base + len(cat.entries)
	ts := time.Now().UTC()
	cat.entries = append(cat.entries, entry{data: raw, timestamp: ts})
	cat.mu.Unlock()

	writeJSON(w, http.StatusCreated, postResponse{Index: idx, Timestamp: ts.Format(time.RFC3339Nano)})
}

func (s *Store) handleGetOne(w http.ResponseWriter, r *http.Request) {
	hashtag := chi.URLParam(r, "hashtag")
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "index must be an integer", http.StatusBadRequest)
		return
	}

	cat := s.category(hashtag)
	cat.mu.Lock()
	defer cat.mu.Unlock()

	pos := resolveIndex(idx, cat.base, len(cat.entries))
	if pos < 0 || pos >= len(cat.entries) {
		http.Error(w, "index out of range", http.StatusNotFound)
		return
	}
	e := cat.entries[pos]
	writeJSON(w, http.StatusOK, getResponse{
		Data:      base64.StdEncoding.EncodeToString(e.data),
		Timestamp: e.timestamp.Format(time.RFC3339Nano),
	})
}

func (s *Store) handleGetRange(w http.ResponseWriter, r *http.Request) {
	hashtag := chi.URLParam(r, "hashtag")
	start, err := strconv.Atoi(chi.URLParam(r, "start"))
	if err != nil {
		http.Error(w, "start must be an integer", http.StatusBadRequest)
		return
	}
	stop, err := strconv.Atoi(chi.URLParam(r, "stop"))
	if err != nil {
		http.Error(w, "stop must be an integer", http.StatusBadRequest)
		return
	}

	cat := s.category(hashtag)
	cat.mu.Lock()
	defer cat.mu.Unlock()

	length := len(cat.entries)
	posStart := resolveIndex(start, cat.base, length)
	posStop := resolveIndex(stop, cat.base, length)
	if posStart < 0 {
		posStart = 0
	}
	if posStop >= length {
		posStop = length - 1
	}

	var data []string
	var ts time.Time
	if posStart <= posStop && posStart < length && posStop >= 0 {
		for i := posStart; i <= posStop; i++ {
			data = append(data, base64.StdEncoding.EncodeToString(cat.entries[i].data))
			ts = cat.entries[i].timestamp
		}
	}

	writeJSON(w, http.StatusOK, getRangeResponse{
		Data:      data,
		Length:    len(data),
		Timestamp: ts.Format(time.RFC3339Nano),
	})
}

func (s *Store) handleLatest(w http.ResponseWriter, r *http.Request) {
	hashtag := chi.URLParam(r, "hashtag")
	cat := s.category(hashtag)
	cat.mu.Lock()
	latest := cat.base + len(cat.entries) - 1
	cat.mu.Unlock()

	writeJSON(w, http.StatusOK, latestResponse{Latest: latest})
}

func (s *Store) handleAfter(w http.ResponseWriter, r *http.Request) {
	hashtag := chi.URLParam(r, "hashtag")
	after, err := time.Parse(time.RFC3339Nano, chi.URLParam(r, "timestamp"))
	if err != nil {
		http.Error(w, "timestamp must be RFC3339", http.StatusBadRequest)
		return
	}

	cat := s.category(hashtag)
	cat.mu.Lock()
	defer cat.mu.Unlock()

	for i, e := range cat.entries {
		if e.timestamp.After(after) {
			writeJSON(w, http.StatusCreated, afterResponse{Index: cat.base + i})
			return
		}
	}
	http.Error(w, "no entry after timestamp", http.StatusNotFound)
}

func (s *Store) handleResize(w http.ResponseWriter, r *http.Request) {
	threshold, err := strconv.Atoi(chi.URLParam(r, "threshold"))
	if err != nil {
		http.Error(w, "threshold must be an integer", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cat := range s.categories {
		cat.mu.Lock()
		usage := 0
		for _, e := range cat.entries {
			usage += len(e.data)
		}
		for usage > threshold && len(cat.entries) > 0 {
			usage -= len(cat.entries[0].data)
			cat.entries = cat.entries[1:]
			cat.base++
		}
		cat.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, resizeResponse{MemUsage: s.memUsageLocked()})
}

func (s *Store) memUsageLocked() int {
	total := 0
	for _, cat := range s.categories {
		for _, e := range cat.entries {
			total += len(e.data)
		}
	}
	return total
}

func (s *Store) handleSave(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Store) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	categories := make(map[string]int, len(s.categories))
	for hashtag, cat := range s.categories {
		cat.mu.Lock()
		categories[hashtag] = len(cat.entries)
		cat.mu.Unlock()
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
