package params

import (
	"errors"
	"fmt"
	"strings"
)

// Parameter keys persisted by the job framework.
const (
	KeyDeletePaths = "toDeletePaths"
	KeyJobID       = "jobId"
)

const separator = ","

// ErrCommaInPath is returned when a value would not survive the comma
// joined encoding.
var ErrCommaInPath = errors.New("value contains the list separator")

// Store is the flat string parameter store owned by the job framework.
type Store interface {
	Set(key, value string)
	Get(key string) (string, bool)
}

// MapStore is an in-memory Store.
type MapStore map[string]string

func (m MapStore) Set(key, value string) { m[key] = value }

func (m MapStore) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Request is the typed view of the parameters a cleanup run needs.
type Request struct {
	Paths []string
	JobID string
}

// DecodeRequest reads the path list and job id. Absent parameters decode to
// their zero values.
func DecodeRequest(s Store) Request {
	return Request{
		Paths: DeletePaths(s),
		JobID: JobID(s),
	}
}

// SetDeletePaths stores the candidate paths under KeyDeletePaths.
func SetDeletePaths(s Store, paths []string) error {
	return SetArray(s, KeyDeletePaths, paths)
}

// DeletePaths returns the candidate paths, in stored order.
func DeletePaths(s Store) []string {
	return GetArray(s, KeyDeletePaths)
}

func SetJobID(s Store, jobID string) {
	s.Set(KeyJobID, jobID)
}

func JobID(s Store) string {
	v, _ := s.Get(KeyJobID)
	return v
}

// SetArray joins values with a comma. Values containing a comma are rejected
// instead of being silently split apart on decode.
func SetArray(s Store, key string, values []string) error {
	for _, v := range values {
		if strings.Contains(v, separator) {
			return fmt.Errorf("%s: %q: %w", key, v, ErrCommaInPath)
		}
	}
	s.Set(key, strings.Join(values, separator))
	return nil
}

// GetArray splits the stored value on commas. Empty tokens are dropped and
// an absent key yields an empty slice.
func GetArray(s Store, key string) []string {
	v, ok := s.Get(key)
	if !ok {
		return []string{}
	}
	return SplitList(v)
}

// SplitList splits a comma joined list, dropping empty tokens.
func SplitList(v string) []string {
	out := []string{}
	for _, tok := range strings.Split(v, separator) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
