// Package restapi implements the REST adapter named in SPEC_FULL.md
// §4: out-of-core per spec.md §1 Non-goals, but still part of the
// repository, translating POST /model/{name}[/version/{n}]:{method}
// into a wire.PredictRequest dispatched through master.Dispatcher.
// Built on valyala/fasthttp, the same HTTP engine aistore's front door
// uses.
package restapi

import (
	"context"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	jsoniter "github.com/json-iterator/go"

	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/master"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/wire/mspb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dispatcher is the minimal surface the REST adapter needs from
// master.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *mspb.PredictRequest) (*mspb.PredictReply, error)
}

var _ Dispatcher = (*master.Dispatcher)(nil)

// Server is a fasthttp-backed REST front door.
type Server struct {
	dispatcher Dispatcher
	inner      fasthttp.Server
}

func NewServer(dispatcher Dispatcher) *Server {
	s := &Server{dispatcher: dispatcher}
	s.inner.Handler = s.handle
	return s
}

// ListenAndServe blocks serving addr until the listener fails or the
// process is signalled to stop (the caller is expected to close the
// listener from the lifecycle latch's shutdown path).
func (s *Server) ListenAndServe(addr string) error {
	return s.inner.ListenAndServe(addr)
}

func (s *Server) Shutdown() error { return s.inner.Shutdown() }

// parsePath parses "/model/{name}[/version/{n}]:{method}" into its
// three parts. A missing model or method name, or an out-of-range
// version, is rejected with InvalidInputs.
func parsePath(path string) (servableName string, version int64, method string, err error) {
	path = strings.TrimPrefix(path, "/")
	const prefix = "model/"
	if !strings.HasPrefix(path, prefix) {
		return "", 0, "", mnerr.New(mnerr.InvalidInputs, "path must start with /model/")
	}
	rest := strings.TrimPrefix(path, prefix)
	colon := strings.LastIndex(rest, ":")
	if colon < 0 {
		return "", 0, "", mnerr.New(mnerr.InvalidInputs, "path must name a method as name:method")
	}
	method = rest[colon+1:]
	if method == "" {
		return "", 0, "", mnerr.New(mnerr.InvalidInputs, "missing method name")
	}
	head := rest[:colon]
	if idx := strings.Index(head, "/version/"); idx >= 0 {
		servableName = head[:idx]
		vs := head[idx+len("/version/"):]
		v, verr := strconv.ParseInt(vs, 10, 64)
		if verr != nil || v < 0 {
			return "", 0, "", mnerr.New(mnerr.InvalidInputs, "invalid version %q", vs)
		}
		version = v
	} else {
		servableName = head
	}
	if servableName == "" {
		return "", 0, "", mnerr.New(mnerr.InvalidInputs, "missing model name")
	}
	return servableName, version, method, nil
}

type restRequestBody struct {
	Instances []*mspb.Instance `json:"instances"`
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if string(ctx.Method()) != fasthttp.MethodPost {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	name, version, method, err := parsePath(string(ctx.Path()))
	if err != nil {
		writeError(ctx, err)
		return
	}
	var body restRequestBody
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		writeError(ctx, mnerr.Wrap(mnerr.InvalidInputs, err, "decode request body"))
		return
	}

	req := &mspb.PredictRequest{
		Spec:      mspb.ServableSpec{Name: name, MethodName: method, VersionNumber: version},
		Instances: body.Instances,
	}
	rep, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		writeError(ctx, err)
		return
	}
	out, err := json.Marshal(rep)
	if err != nil {
		writeError(ctx, mnerr.Wrap(mnerr.SystemError, err, "encode reply"))
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(out)
}

func writeError(ctx *fasthttp.RequestCtx, err error) {
	code := mnerr.Code(err)
	status := fasthttp.StatusInternalServerError
	switch code {
	case mnerr.InvalidInputs:
		status = fasthttp.StatusBadRequest
	case mnerr.ServableUnavailable, mnerr.WorkerUnavailable:
		status = fasthttp.StatusServiceUnavailable
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	b, _ := json.Marshal(&mspb.ErrorMsg{Code: int32(code), Message: err.Error()})
	ctx.SetBody(b)
	nlog.Warningf("restapi: %s %s -> %d: %v", ctx.Method(), ctx.Path(), status, err)
}
