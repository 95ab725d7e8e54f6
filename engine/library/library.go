// Package library reaches the engine through a dynamically loaded native
// library exposing synchronous calls.
package library

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

// Native is the call surface of a loaded engine library. Every method returns
// the raw reply: an engine.Envelope holding either the result or the message
// of the error the library raised.
type Native interface {
	GetConfig(options string) string
	DMMF(datamodel string) string
	DebugPanic(message string) string
	Version() string
}

// Loader opens the library at path.
type Loader func(path string) (Native, error)

// VersionInfo is the reply of the version call.
type VersionInfo struct {
	Commit  string `json:"commit"`
	Version string `json:"version"`
}

// DMMFParams is the payload the library expects for CommandGetDMMF.
type DMMFParams struct {
	Datamodel string `json:"datamodel"`
}

var (
	cacheMu sync.Mutex
	cache   = map[string]Native{}
)

// Open loads the library at path once per process and returns the cached
// handle afterwards.
func Open(path string, load Loader) (Native, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if n, ok := cache[path]; ok {
		return n, nil
	}
	n, err := load(path)
	if err != nil {
		return nil, err
	}
	cache[path] = n
	return n, nil
}

// Transport calls a native engine library.
type Transport struct {
	path    string
	load    Loader
	markers engine.Markers
}

// New creates a library transport for the library at path. A nil loader uses
// the platform dynamic loader.
func New(path string, load Loader) *Transport {
	if load == nil {
		load = Dlopen
	}
	return &Transport{path: path, load: load, markers: engine.DefaultMarkers()}
}

// WithMarkers replaces the markers used to classify raised errors.
func (t *Transport) WithMarkers(m engine.Markers) *Transport {
	t.markers = m
	return t
}

// Kind implements engine.Transport.
func (t *Transport) Kind() engine.Kind {
	return engine.KindLibrary
}

// Invoke implements engine.Transport.
func (t *Transport) Invoke(ctx context.Context, req engine.Request) (outcome engine.Outcome) {
	if err := ctx.Err(); err != nil {
		return engine.Failure("engine call cancelled", err)
	}

	native, err := Open(t.path, t.load)
	if err != nil {
		return engine.Failure(fmt.Sprintf("could not load engine library %s", t.path), err)
	}

	// A Go panic inside the binding must not take the caller down with it.
	defer func() {
		if r := recover(); r != nil {
			outcome = engine.Panic(fmt.Sprint(r), "", req.Echo())
		}
	}()

	var raw string
	switch req.Command {
	case engine.CommandGetConfig:
		params, err := engine.EncodeParams(req.Params)
		if err != nil {
			return engine.Failure("could not encode engine request", err)
		}
		raw = native.GetConfig(string(params))
	case engine.CommandGetDMMF:
		datamodel, err := dmmfDatamodel(req)
		if err != nil {
			return engine.Failure("could not encode engine request", err)
		}
		raw = native.DMMF(datamodel)
	case engine.CommandDebugPanic:
		var message string
		if p, ok := req.Params.(engine.DebugPanicParams); ok {
			message = p.Message
		}
		raw = native.DebugPanic(message)
	case engine.CommandVersion:
		raw = native.Version()
	default:
		return engine.Failure(fmt.Sprintf("command %s is not supported by the library engine", req.Command), nil)
	}

	debug.Debug("library call returned", "component", "library", "command", string(req.Command), "bytes", len(raw))
	outcome = engine.DecodeEnvelope([]byte(raw), t.markers)
	if outcome.Kind == engine.OutcomePanic && outcome.RequestEcho == "" {
		outcome.RequestEcho = req.Echo()
	}
	return outcome
}

// dmmfDatamodel picks the datamodel string from the request: an explicit
// DMMFParams payload, or the merged schema text.
func dmmfDatamodel(req engine.Request) (string, error) {
	switch p := req.Params.(type) {
	case DMMFParams:
		return p.Datamodel, nil
	case nil:
		return req.Schemas.MergedText(), nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return "", err
		}
		var dp DMMFParams
		if err := json.Unmarshal(data, &dp); err == nil && dp.Datamodel != "" {
			return dp.Datamodel, nil
		}
		return req.Schemas.MergedText(), nil
	}
}
