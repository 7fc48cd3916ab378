package store

import (
	"encoding/json"
	"fmt"
	"net/http"

	rq "github.com/parnurzeal/gorequest"
	"github.com/pkg/errors"

	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
)

// Hub fetches records and component metadata from the remote hub over HTTP.
// Object payloads are the exact serialized record bytes, so their hashes can
// be verified on arrival.
type Hub struct {
	address string
	token   string
}

// NewHub returns a client for the hub at the given address
func NewHub(address, token string) *Hub {
	return &Hub{address: address, token: token}
}

func (h *Hub) request(url string) *rq.SuperAgent {
	agent := rq.New().Get(url)
	if h.token != "" {
		agent.Set("Authorization", "Bearer "+h.token)
	}
	return agent
}

// ErrScopeUnknown marks a scope the hub has never heard of.  Callers syncing
// possibly-new components swallow this.
var ErrScopeUnknown = errors.New("scope unknown on the hub")

// FetchRecord downloads the serialized bytes of a record
func (h *Hub) FetchRecord(r ref.Ref) ([]byte, error) {
	url := fmt.Sprintf("%s/objects/%s", h.address, r)
	resp, body, errs := h.request(url).End()
	if errs != nil {
		return nil, requestErr("record "+r.Short(), errs)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrNotFound, "record %s on the hub", r.Short())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching record %s failed: HTTP status %d - '%v'",
			r.Short(), resp.StatusCode, resp.Status)
	}
	data := []byte(body)
	if got := ref.Compute(data); got != r {
		return nil, errors.Errorf("record %s fetched from the hub hashes to %s, refusing it",
			r.Short(), got.Short())
	}
	return data, nil
}

// hubComponent is the hub's component metadata response
type hubComponent struct {
	Component json.RawMessage `json:"component"`
	History   json.RawMessage `json:"history,omitempty"`
}

// FetchComponent downloads a component's head record and history cache
func (h *Hub) FetchComponent(scope, name string) (*model.ModelComponent, *model.VersionHistory, error) {
	url := fmt.Sprintf("%s/components/%s/%s", h.address, scope, name)
	resp, body, errs := h.request(url).End()
	if errs != nil {
		return nil, nil, requestErr("component "+scope+"/"+name, errs)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, errors.Wrapf(ErrScopeUnknown, "component %s/%s", scope, name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, errors.Errorf("fetching component %s/%s failed: HTTP status %d - '%v'",
			scope, name, resp.StatusCode, resp.Status)
	}
	var payload hubComponent
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, nil, errors.Wrapf(err, "parsing hub response for %s/%s", scope, name)
	}
	var m model.ModelComponent
	if err := json.Unmarshal(payload.Component, &m); err != nil {
		return nil, nil, errors.Wrapf(err, "parsing component record for %s/%s", scope, name)
	}
	var hist *model.VersionHistory
	if len(payload.History) > 0 {
		hist = &model.VersionHistory{}
		if err := json.Unmarshal(payload.History, hist); err != nil {
			return nil, nil, errors.Wrapf(err, "parsing history record for %s/%s", scope, name)
		}
	}
	return &m, hist, nil
}

func requestErr(what string, errs []error) error {
	e := fmt.Sprintf("errors when fetching %s from the hub:", what)
	for _, err := range errs {
		e += " " + err.Error()
	}
	return errors.New(e)
}
