package remote

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/satmihir/justlru/internal/constants"
	"github.com/satmihir/justlru/storage"
)

// StatsResponse is the JSON body of GET /stats.
type StatsResponse struct {
	Hits            uint64  `json:"hits"`
	Misses          uint64  `json:"misses"`
	Capacity        int     `json:"capacity"`
	Size            int     `json:"size"`
	HitRatio        float64 `json:"hit_ratio"`
	MemoryUsedBytes uint64  `json:"memory_used_bytes"`
	MaxMemoryBytes  uint64  `json:"max_memory_bytes"`
	Evictions       uint64  `json:"evictions"`
	Expirations     uint64  `json:"expirations"`
}

func newStatsResponse(st storage.Stats) StatsResponse {
	return StatsResponse{
		Hits:            st.Hits,
		Misses:          st.Misses,
		Capacity:        st.Capacity,
		Size:            st.Size,
		HitRatio:        st.HitRatio(),
		MemoryUsedBytes: st.MemoryUsedBytes,
		MaxMemoryBytes:  st.MaxMemoryBytes,
		Evictions:       st.Evictions,
		Expirations:     st.Expirations,
	}
}

// handleGet returns the cached value.
// 200 with the value, 404 on a miss.
func (s *CacheServer) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		http.Error(w, "invalid path: key cannot be empty", http.StatusBadRequest)
		return
	}

	entry, err := s.storage.Get(key)
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}

	setEntryHeaders(w, entry)
	w.WriteHeader(http.StatusOK)
	w.Write(entry.Value)
}

// handlePost asks to fill a missing key.
//
//	200: the key is already cached, metadata in headers
//	202: promise granted (or would be, on a dry run)
//	409: someone else holds a promise, Retry-After says how long
//	507: x-jc-size can never fit
func (s *CacheServer) handlePost(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		http.Error(w, "invalid path: key cannot be empty", http.StatusBadRequest)
		return
	}

	entry, err := s.storage.Peek(key)
	if err == nil {
		setEntryHeaders(w, entry)
		w.WriteHeader(http.StatusOK)
		return
	}
	if !errors.Is(err, storage.ErrKeyNotFound) {
		s.writeStorageError(w, r, err)
		return
	}

	var valueSize int64 = -1
	if h := r.Header.Get(headerSize); h != "" {
		valueSize, err = strconv.ParseInt(h, 10, 64)
		if err != nil || valueSize < 0 {
			http.Error(w, "invalid x-jc-size header: must be a non-negative integer", http.StatusBadRequest)
			return
		}
		if !s.storage.CanFit(len(key), int(valueSize)) {
			http.Error(w, "value too large for storage capacity", http.StatusInsufficientStorage)
			return
		}
	}

	promiseTTL, err := parseMillis(r.Header.Get(headerPromiseTTL), defaultPromiseTTL)
	if err != nil {
		http.Error(w, "invalid x-jc-promise-ttl header: must be a positive integer (milliseconds)", http.StatusBadRequest)
		return
	}

	if r.Header.Get(headerDryRun) == "true" {
		if remaining := s.promises.Remaining(key); remaining > 0 {
			writeConflict(w, remaining)
			return
		}
		w.Header().Set(headerPromiseTTL, strconv.FormatInt(promiseTTL.Milliseconds(), 10))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	remaining, ok := s.promises.Reserve(key, valueSize, promiseTTL)
	if !ok {
		writeConflict(w, remaining)
		return
	}
	w.Header().Set(headerPromiseTTL, strconv.FormatInt(remaining.Milliseconds(), 10))
	w.WriteHeader(http.StatusAccepted)
}

// handlePut uploads a value for a key the caller holds a promise on.
func (s *CacheServer) handlePut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		http.Error(w, "invalid path: key cannot be empty", http.StatusBadRequest)
		return
	}

	if r.ContentLength < 0 {
		http.Error(w, "Content-Length required", http.StatusLengthRequired)
		return
	}
	if r.ContentLength > constants.MaxValueSizeBytes {
		http.Error(w, "payload exceeds maximum allowed size", http.StatusRequestEntityTooLarge)
		return
	}

	promise := s.promises.Lookup(key)
	if promise == nil {
		http.Error(w, "no active promise for this key; call POST first", http.StatusConflict)
		return
	}
	if promise.Size >= 0 && r.ContentLength != promise.Size {
		s.promises.Release(key)
		http.Error(w, "Content-Length does not match promised size", http.StatusConflict)
		return
	}

	ttl, err := parseMillis(r.Header.Get(headerTTL), s.defaultTTL)
	if err != nil {
		http.Error(w, "invalid x-jc-ttl header: must be a positive integer (milliseconds)", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxValueSizeBytes)
	value, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.promises.Release(key)
			http.Error(w, "payload exceeds maximum allowed size", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if int64(len(value)) != r.ContentLength {
		http.Error(w, "incomplete request body", http.StatusBadRequest)
		return
	}

	if err := s.storage.Put(key, value, ttl); err != nil {
		// Memory pressure may clear up, so the promise survives it.
		if !errors.Is(err, storage.ErrMemoryLimitExceeded) {
			s.promises.Release(key)
		}
		s.writeStorageError(w, r, err)
		return
	}

	s.promises.Release(key)
	w.WriteHeader(http.StatusOK)
}

func (s *CacheServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		http.Error(w, "invalid path: key cannot be empty", http.StatusBadRequest)
		return
	}

	// DELETE also abandons a fill promise, so a failed loader can hand the
	// key back before the promise expires.
	held := s.promises.Lookup(key) != nil
	s.promises.Release(key)

	if err := s.storage.Delete(key); err != nil {
		if !held || !errors.Is(err, storage.ErrDeleteKeyNotFound) {
			s.writeStorageError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CacheServer) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newStatsResponse(s.storage.Stats())); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode stats")
	}
}

func (s *CacheServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok\n")
}

// writeStorageError maps storage errors to status codes.
func (s *CacheServer) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrKeyNotFound), errors.Is(err, storage.ErrDeleteKeyNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, storage.ErrMemoryLimitExceeded):
		http.Error(w, err.Error(), http.StatusInsufficientStorage)
	case errors.Is(err, storage.ErrObjectTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, storage.ErrKeyTooLong),
		errors.Is(err, storage.ErrKeyTooShort),
		errors.Is(err, storage.ErrValueTooShort),
		errors.Is(err, storage.ErrInvalidTTL):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("storage failure")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func setEntryHeaders(w http.ResponseWriter, entry *storage.CacheEntry) {
	w.Header().Set(headerSize, strconv.Itoa(entry.Size))
	w.Header().Set(headerTTL, strconv.FormatInt(entry.RemainingTTL.Milliseconds(), 10))
}

func writeConflict(w http.ResponseWriter, remaining time.Duration) {
	w.Header().Set(headerPromiseTTL, strconv.FormatInt(remaining.Milliseconds(), 10))
	w.Header().Set(headerRetryAfter, strconv.Itoa(int(remaining.Seconds())+1))
	w.WriteHeader(http.StatusConflict)
}

// parseMillis reads a positive millisecond header, falling back to def when
// the header is absent.
func parseMillis(h string, def time.Duration) (time.Duration, error) {
	if h == "" {
		return def, nil
	}
	ms, err := strconv.ParseInt(h, 10, 64)
	if err != nil {
		return 0, err
	}
	if ms <= 0 {
		return 0, strconv.ErrRange
	}
	return time.Duration(ms) * time.Millisecond, nil
}
