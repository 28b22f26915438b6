package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/dotrep/internal/adapters/chain"
	"github.com/okian/dotrep/internal/adapters/http/api"
	service "github.com/okian/dotrep/internal/app"
	"github.com/okian/dotrep/internal/domain/address"
	"github.com/okian/dotrep/internal/domain/model"
	"github.com/okian/dotrep/internal/domain/scoring"
	"github.com/okian/dotrep/internal/domain/types"
	"github.com/okian/dotrep/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

type mockDeps struct {
	reports      map[string]types.Report
	scoreErr     error
	gotNetwork   string
	gotActivity  model.WalletActivity
	gotAt        time.Time
	batchErr     error
	gotAddresses []string
}

func (m *mockDeps) ScoreAddress(_ context.Context, addr, network string) (types.Report, error) {
	m.gotNetwork = network
	if m.scoreErr != nil {
		return types.Report{}, m.scoreErr
	}
	r, ok := m.reports[addr]
	if !ok {
		return types.Report{}, fmt.Errorf("%w: %s", chain.ErrWalletNotFound, addr)
	}
	return r, nil
}

func (m *mockDeps) ScoreActivity(_ context.Context, a model.WalletActivity, at time.Time) types.Report {
	m.gotActivity = a
	m.gotAt = at
	return types.Report{Score: scoring.NewEngine().Evaluate(a, at).Score, Events: []string{}}
}

func (m *mockDeps) ScoreBatch(_ context.Context, addrs []string, network string) (types.BatchReport, error) {
	m.gotAddresses = addrs
	m.gotNetwork = network
	if m.batchErr != nil {
		return types.BatchReport{}, m.batchErr
	}
	out := types.BatchReport{Network: network}
	for _, a := range addrs {
		if r, ok := m.reports[a]; ok {
			out.Add(types.BatchItem{Address: a, Report: &r})
		} else {
			out.Add(types.BatchItem{Address: a, Error: "wallet not found"})
		}
	}
	return out, nil
}

func (m *mockDeps) MaxBatchSize() int { return 2 }

type mockStats struct{}

func (mockStats) GetStats() map[string]any {
	return map[string]any{"started": true, "scored": 3}
}

func newTestServer(deps *mockDeps) http.Handler {
	return api.NewServer(deps, mockStats{}).Handler()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(rec *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}

func TestGetScore(t *testing.T) {
	Convey("Given a server with one known wallet", t, func() {
		deps := &mockDeps{reports: map[string]types.Report{
			alice: {Address: alice, Network: "polkadot", Score: 512, Tier: scoring.TierPoor},
		}}
		h := newTestServer(deps)

		Convey("When requesting a known wallet", func() {
			rec := do(h, http.MethodGet, "/score/"+alice+"?network=kusama", "")

			Convey("Then the report is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				var r types.Report
				So(json.Unmarshal(rec.Body.Bytes(), &r), ShouldBeNil)
				So(r.Score, ShouldEqual, 512)
				So(deps.gotNetwork, ShouldEqual, "kusama")
			})

			Convey("Then a request id is assigned", func() {
				So(rec.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
			})
		})

		Convey("When the caller supplies a request id", func() {
			req := httptest.NewRequest(http.MethodGet, "/score/"+alice, nil)
			req.Header.Set(api.RequestIDHeader, "trace-123")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			Convey("Then it is echoed", func() {
				So(rec.Header().Get(api.RequestIDHeader), ShouldEqual, "trace-123")
			})
		})

		Convey("When the wallet is unknown", func() {
			rec := do(h, http.MethodGet, "/score/15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5", "")

			Convey("Then 404 is returned with the request id", func() {
				So(rec.Code, ShouldEqual, http.StatusNotFound)
				body := decodeError(rec)
				So(body["code"], ShouldEqual, "not_found")
				So(body["request_id"], ShouldEqual, rec.Header().Get(api.RequestIDHeader))
			})
		})

		Convey("When the path is malformed", func() {
			So(do(h, http.MethodGet, "/score/", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/score/a/b", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When using the wrong method", func() {
			So(do(h, http.MethodDelete, "/score/"+alice, "").Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a server whose scorer fails", t, func() {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{fmt.Errorf("%w: %w", address.ErrInvalidAddress, address.ErrChecksum), http.StatusBadRequest, "invalid_address"},
			{fmt.Errorf("%w: %w", address.ErrInvalidAddress, address.ErrNetworkMismatch), http.StatusBadRequest, "invalid_address"},
			{chain.ErrUnsupportedNetwork, http.StatusBadRequest, "unsupported_network"},
			{fmt.Errorf("%w: indexer error (503)", chain.ErrUpstream), http.StatusBadGateway, "upstream_error"},
			{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
			{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		}
		for _, tc := range cases {
			Convey("Then "+tc.err.Error()+" maps to "+tc.code, func() {
				h := newTestServer(&mockDeps{scoreErr: tc.err})
				rec := do(h, http.MethodGet, "/score/"+alice, "")
				So(rec.Code, ShouldEqual, tc.status)
				So(decodeError(rec)["code"], ShouldEqual, tc.code)
			})
		}
	})
}

func TestPostScore(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := &mockDeps{}
		h := newTestServer(deps)

		Convey("When posting a snapshot with an evaluation time", func() {
			body := `{
				"activity": {"acala": {"loanRepaid": [{"timestamp": "2025-08-01T00:00:00Z"}]}},
				"at": "2025-09-28T12:00:00Z"
			}`
			rec := do(h, http.MethodPost, "/score", body)

			Convey("Then the snapshot is scored at that time", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(deps.gotAt.Equal(time.Date(2025, 9, 28, 12, 0, 0, 0, time.UTC)), ShouldBeTrue)
				So(deps.gotActivity.Acala.LoanRepaid, ShouldHaveLength, 1)
				var r types.Report
				So(json.Unmarshal(rec.Body.Bytes(), &r), ShouldBeNil)
				So(r.Score, ShouldEqual, 337)
			})
		})

		Convey("When posting without an evaluation time", func() {
			rec := do(h, http.MethodPost, "/score", `{"activity": {}}`)

			Convey("Then the zero time is passed through", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(deps.gotAt.IsZero(), ShouldBeTrue)
			})
		})

		Convey("When the request is invalid", func() {
			So(do(h, http.MethodPost, "/score", `{`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/score", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/score", `{"activity": {}, "at": "yesterday"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/score", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestPostBatch(t *testing.T) {
	Convey("Given a server with one known wallet", t, func() {
		deps := &mockDeps{reports: map[string]types.Report{alice: {Score: 600}}}
		h := newTestServer(deps)

		Convey("When posting a batch", func() {
			rec := do(h, http.MethodPost, "/score/batch", `{"addresses": ["`+alice+`", "nobody"], "network": "polkadot"}`)

			Convey("Then per-item results are returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				var b types.BatchReport
				So(json.Unmarshal(rec.Body.Bytes(), &b), ShouldBeNil)
				So(b.Succeeded, ShouldEqual, 1)
				So(b.Failed, ShouldEqual, 1)
				So(b.Results[0].Report.Score, ShouldEqual, 600)
				So(deps.gotNetwork, ShouldEqual, "polkadot")
			})
		})

		Convey("When the batch exceeds the limit", func() {
			rec := do(h, http.MethodPost, "/score/batch", `{"addresses": ["a", "b", "c"]}`)

			Convey("Then it is rejected before scoring", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(rec)["code"], ShouldEqual, "batch_too_large")
				So(deps.gotAddresses, ShouldBeNil)
			})
		})

		Convey("When the batch is empty or malformed", func() {
			rec := do(h, http.MethodPost, "/score/batch", `{"addresses": []}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(rec)["code"], ShouldEqual, "empty_batch")
			So(do(h, http.MethodPost, "/score/batch", `[]`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/score/batch", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the service rejects the batch bounds", func() {
			deps.batchErr = fmt.Errorf("%w: 2 addresses, limit 1", service.ErrBatchTooLarge)
			rec := do(h, http.MethodPost, "/score/batch", `{"addresses": ["a", "b"]}`)

			Convey("Then it is a client error", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(rec)["code"], ShouldEqual, "batch_too_large")
			})

			Convey("Then an empty batch is a client error too", func() {
				deps.batchErr = service.ErrEmptyBatch
				rec := do(h, http.MethodPost, "/score/batch", `{"addresses": ["a"]}`)
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(rec)["code"], ShouldEqual, "empty_batch")
			})
		})

		Convey("When the service fails", func() {
			deps.batchErr = errors.New("pool closed")
			rec := do(h, http.MethodPost, "/score/batch", `{"addresses": ["a"]}`)
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given a server", t, func() {
		h := newTestServer(&mockDeps{})

		Convey("When checking health", func() {
			rec := do(h, http.MethodGet, "/healthz", "")

			Convey("Then status is ok", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			})
		})

		Convey("When reading stats", func() {
			rec := do(h, http.MethodGet, "/stats", "")

			Convey("Then the provider's stats are returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `"scored":3`)
			})
		})

		Convey("When scraping metrics after a request", func() {
			do(h, http.MethodGet, "/healthz", "")
			rec := do(h, http.MethodGet, "/metrics", "")

			Convey("Then HTTP metrics are exported", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "dotrep_reputation_http_requests_total")
			})
		})

		Convey("When using wrong methods", func() {
			So(do(h, http.MethodPost, "/healthz", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestError(t *testing.T) {
	Convey("Given operation-tagged errors", t, func() {
		Convey("Then kinds and causes are both visible", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, chain.ErrWalletNotFound)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, chain.ErrWalletNotFound), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: wallet not found")
		})

		Convey("Then NewKind and Wrap render without missing parts", func() {
			So(api.NewKind("api.op", api.ErrBatchTooLarge).Error(), ShouldEqual, "api.op: batch too large")
			So(api.Wrap("api.op", chain.ErrUpstream).Error(), ShouldEqual, "api.op: upstream failure")
			So(api.Wrap("api.op", nil), ShouldBeNil)
		})
	})
}
