// Package generichttp defines a route table for devices and helpers that
// wrap them in an HTTP interface
package generichttp

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi"
)

// MethodPath is an HTTP method and a chi route pattern
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps method and path to a handler
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the routes in a RouteTable as "METHOD /path", sorted
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k.Method+" "+k.Path)
	}
	sort.Strings(routes)
	return routes
}

// Bind places every route of rt onto r, plus GET /endpoints listing them
func (rt RouteTable) Bind(r chi.Router) {
	for mp, fcn := range rt {
		r.MethodFunc(mp.Method, mp.Path, fcn)
	}
	list := rt.Endpoints()
	r.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(list)
		if err != nil {
			fstr := fmt.Sprintf("error encoding list of routes data to json %q", err)
			log.Println(fstr)
			http.Error(w, fstr, http.StatusInternalServerError)
		}
	})
}

// HTTPer has a route table
type HTTPer interface {
	RT() RouteTable
}

// SubMux mounts the routes of h on root under the endpoint stem, and applies
// middleware to them
func SubMux(root chi.Router, stem string, h HTTPer, middleware ...func(http.Handler) http.Handler) {
	stem = "/" + strings.Trim(stem, "/*")
	root.Route(stem, func(r chi.Router) {
		r.Use(middleware...)
		h.RT().Bind(r)
	})
}

// StrT is a struct with a single Str field
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single Bool field
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload is a struct containing the basic types the devices reply
// with, and a type field which tells which of them is populated
type HumanPayload struct {
	Bool   bool
	String string
	Int    int
	T      types.BasicKind
}

// EncodeAndRespond converts the payload to JSON and writes it to w.
// Errors are logged and replied with http.Error, status 500
func (hp *HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Bool:
		v = BoolT{Bool: hp.Bool}
	case types.String:
		v = StrT{Str: hp.String}
	case types.Int:
		v = struct {
			Int int `json:"int"`
		}{hp.Int}
	default:
		http.Error(w, fmt.Sprintf("unsupported payload type %v", hp.T), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		fstr := fmt.Sprintf("error encoding data to json %q", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Bool, Bool: b}
		hp.EncodeAndRespond(w, r)
	}
}

// SetBool parses a JSON input of {'bool': value} and
// calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(b.Bool)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
