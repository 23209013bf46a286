// Package locker provides an HTTP middleware which allows an HTTPHandler to be locked, returning 423 (locked)
package locker

import (
	"net/http"
	"strings"
	"sync"

	"github.com/nasa-jpl/cpsc/generichttp"
)

// Inject adds a lock route to a generichttp.HTTPer which is used to manipulate the locker
func Inject(other generichttp.HTTPer, l *Locker) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = generichttp.GetBool(func() (bool, error) { return l.Locked(), nil })
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = generichttp.SetBool(func(b bool) error {
		if b {
			l.Lock()
		} else {
			l.Unlock()
		}
		return nil
	})
}

// Locker is a type which behaves like a sync.Mutex without the blocking,
// and holds a list of path suffixes to not protect
type Locker struct {
	mu       sync.Mutex
	isLocked bool

	// DoNotProtect is a list of path suffixes not to apply the lock to
	DoNotProtect []string
}

// New returns a new Locker with DoNotProtect prepopulated with lock and
// endpoints, plus any extras
func New(extra ...string) *Locker {
	return &Locker{DoNotProtect: append([]string{"/lock", "/endpoints"}, extra...)}
}

// Lock the locker
func (l *Locker) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.isLocked = true
}

// Unlock the locker
func (l *Locker) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.isLocked = false
}

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isLocked
}

// Check is an HTTP middleware that returns http.StatusLocked if Locked() is true, otherwise passes down the line
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() && l.protected(r.URL.Path) {
			http.Error(w, "locked", http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Locker) protected(path string) bool {
	path = strings.TrimSuffix(path, "/")
	for _, str := range l.DoNotProtect {
		if strings.HasSuffix(path, str) {
			return false
		}
	}
	return true
}
