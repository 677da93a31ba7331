package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/sub-tracker/internal/domains"
	"github.com/zombor/sub-tracker/internal/scanning"
)

// stubScanRunner is a controllable ScanRunner
type stubScanRunner struct {
	verdict   scanning.Verdict
	err       error
	requested []int
	delivered []verdictDelivery
}

func (s *stubScanRunner) RequestScan(ctx context.Context, tabID int) (scanning.Verdict, error) {
	s.requested = append(s.requested, tabID)
	if s.err != nil {
		return scanning.Verdict{}, s.err
	}
	return s.verdict, nil
}

func (s *stubScanRunner) Deliver(tabID int, verdict scanning.Verdict) {
	s.delivered = append(s.delivered, verdictDelivery{TabID: tabID, Verdict: verdict})
}

// stubSnapshots records snapshot registry traffic
type stubSnapshots struct {
	registered []int
	released   []int
}

func (s *stubSnapshots) Register(tabID int, snapshot scanning.PageSnapshot) {
	s.registered = append(s.registered, tabID)
}

func (s *stubSnapshots) Release(tabID int) {
	s.released = append(s.released, tabID)
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		store       *Store
		queries     *Queries
		clock       *fixedTimeSource
		scans       *stubScanRunner
		snapshots   *stubSnapshots
		links       domains.Links
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	newServer := func() {
		server = NewServerWithMux(store, queries, scans, snapshots, links, auth, http.NewServeMux())
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
	}

	doJSON := func(method, path string, payload any) *http.Response {
		ghttpServer.AppendHandlers(server.ServeHTTP)

		var body io.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			Expect(err).NotTo(HaveOccurred())
			body = bytes.NewReader(raw)
		}
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, into any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(into)).To(Succeed())
	}

	BeforeEach(func() {
		db = newMockDB()
		clock = &fixedTimeSource{now: time.Date(2026, 8, 30, 10, 0, 0, 0, time.Local)}
		store = NewStoreWithDeps(db, &seqIDGenerator{}, clock)
		queries = NewQueriesWithTime(clock)
		scans = &stubScanRunner{}
		snapshots = &stubSnapshots{}
		links = domains.Links{"netflix.com": {CancelURL: "https://www.netflix.com/cancelplan"}}
		auth = BasicAuth{}
		newServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("POST /api/scan", func() {
		scanBody := func() map[string]any {
			return map[string]any{
				"tabId": 7,
				"url":   "https://billing.netflix.com/account/billing",
				"title": "Netflix - Billing",
				"html":  "<html><body>next billing date</body></html>",
			}
		}

		When("the scan succeeds", func() {
			BeforeEach(func() {
				scans.verdict = scanning.Verdict{
					Detected:   true,
					Confidence: scanning.ConfidenceHigh,
					Score:      12,
					PageType:   scanning.PageTypeBilling,
				}
			})

			It("should respond with the verdict and page info", func() {
				resp := doJSON("POST", "/api/scan", scanBody())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body scanResponse
				decode(resp, &body)
				Expect(body.OK).To(BeTrue())
				Expect(body.Verdict).NotTo(BeNil())
				Expect(body.Verdict.PageType).To(Equal(scanning.PageTypeBilling))
				Expect(body.Page.BaseDomain).To(Equal("netflix.com"))
				Expect(body.Page.ServiceName).To(Equal("Netflix"))
				Expect(body.Page.Cancellation.Kind).To(Equal("known"))
				Expect(body.Page.Cancellation.URL).To(Equal("https://www.netflix.com/cancelplan"))
			})

			It("should register and release the tab's snapshot", func() {
				resp := doJSON("POST", "/api/scan", scanBody())
				resp.Body.Close()

				Expect(snapshots.registered).To(Equal([]int{7}))
				Expect(snapshots.released).To(Equal([]int{7}))
				Expect(scans.requested).To(Equal([]int{7}))
			})
		})

		When("the scan times out", func() {
			BeforeEach(func() {
				scans.err = scanning.ErrScanTimeout
			})

			It("should still return the page info for a manual save", func() {
				resp := doJSON("POST", "/api/scan", scanBody())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body scanResponse
				decode(resp, &body)
				Expect(body.OK).To(BeFalse())
				Expect(body.Error).NotTo(BeEmpty())
				Expect(body.Verdict).To(BeNil())
				Expect(body.Page.BaseDomain).To(Equal("netflix.com"))
			})
		})

		When("a scan is already pending for the tab", func() {
			BeforeEach(func() {
				scans.err = scanning.ErrScanInProgress
			})

			It("should respond with conflict", func() {
				resp := doJSON("POST", "/api/scan", scanBody())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			})
		})

		When("no eligible tab is supplied", func() {
			BeforeEach(func() {
				scans.err = scanning.ErrNoActiveTab
			})

			It("should respond with bad request", func() {
				resp := doJSON("POST", "/api/scan", scanBody())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /api/scan/verdict", func() {
		It("should route the verdict to the scan runner", func() {
			resp := doJSON("POST", "/api/scan/verdict", map[string]any{
				"tabId":   3,
				"verdict": scanning.Verdict{Detected: true, Score: 6, Confidence: scanning.ConfidenceMedium},
			})
			resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			Expect(scans.delivered).To(HaveLen(1))
			Expect(scans.delivered[0].TabID).To(Equal(3))
			Expect(scans.delivered[0].Verdict.Score).To(Equal(6))
		})
	})

	Describe("POST /api/subscriptions", func() {
		It("should create a record for a new domain", func() {
			resp := doJSON("POST", "/api/subscriptions", map[string]any{
				"url":              "https://www.netflix.com/billing",
				"title":            "Netflix - Billing",
				"detectedPageType": "billing",
				"confidence":       "high",
				"renewalDate":      "2026-09-15",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var result UpsertResult
			decode(resp, &result)
			Expect(result.Mode).To(Equal(UpsertCreated))
			Expect(result.Record.BaseDomain).To(Equal("netflix.com"))
			Expect(result.Record.ServiceName).To(Equal("Netflix"))
		})

		It("should merge a re-save of the same domain", func() {
			resp := doJSON("POST", "/api/subscriptions", map[string]any{"url": "https://www.netflix.com/billing", "title": "Netflix"})
			resp.Body.Close()

			resp = doJSON("POST", "/api/subscriptions", map[string]any{"url": "https://billing.netflix.com/", "title": "Netflix", "renewalDate": "2026-10-01"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result UpsertResult
			decode(resp, &result)
			Expect(result.Mode).To(Equal(UpsertUpdated))
			Expect(db.records).To(HaveLen(1))
			Expect(db.records[0].RenewalDate).To(Equal("2026-10-01"))
		})

		When("no base domain can be derived", func() {
			It("should reject the save", func() {
				resp := doJSON("POST", "/api/subscriptions", map[string]any{"url": "about:blank", "title": "Blank"})
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(db.records).To(BeEmpty())
			})

			It("should allow a forced save", func() {
				resp := doJSON("POST", "/api/subscriptions", map[string]any{"url": "about:blank", "title": "Mystery Service", "force": true})
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(db.records).To(HaveLen(1))
			})
		})
	})

	Describe("GET /api/subscriptions", func() {
		BeforeEach(func() {
			renewal := clock.now.AddDate(0, 0, 5).Format("2006-01-02")
			db.records = []Record{
				{ID: "a", ServiceName: "Netflix", BaseDomain: "netflix.com", Category: "streaming", RenewalDate: renewal, CreatedAt: clock.now},
				{ID: "b", ServiceName: "Dropbox", BaseDomain: "dropbox.com", Category: "storage", CreatedAt: clock.now.Add(time.Hour)},
			}
		})

		It("should return all records", func() {
			resp := doJSON("GET", "/api/subscriptions", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var records []Record
			decode(resp, &records)
			Expect(records).To(HaveLen(2))
		})

		It("should apply the text filter", func() {
			resp := doJSON("GET", "/api/subscriptions?q=dropbox", nil)
			var records []Record
			decode(resp, &records)
			Expect(idsOf(records)).To(Equal([]string{"b"}))
		})

		It("should apply the window filter", func() {
			resp := doJSON("GET", "/api/subscriptions?window=7", nil)
			var records []Record
			decode(resp, &records)
			Expect(idsOf(records)).To(Equal([]string{"a"}))
		})

		It("should sort newest when asked", func() {
			resp := doJSON("GET", "/api/subscriptions?sort=newest", nil)
			var records []Record
			decode(resp, &records)
			Expect(idsOf(records)).To(Equal([]string{"b", "a"}))
		})

		It("should reject a malformed window", func() {
			resp := doJSON("GET", "/api/subscriptions?window=soon", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/subscriptions/upcoming", func() {
		It("should return the renewing-soon shortlist", func() {
			db.records = []Record{
				{ID: "soon", RenewalDate: clock.now.AddDate(0, 0, 3).Format("2006-01-02")},
				{ID: "later", RenewalDate: clock.now.AddDate(0, 0, 60).Format("2006-01-02")},
				{ID: "undated"},
			}

			resp := doJSON("GET", "/api/subscriptions/upcoming", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var records []Record
			decode(resp, &records)
			Expect(idsOf(records)).To(Equal([]string{"soon"}))
		})
	})

	Describe("PATCH /api/subscriptions/{id}", func() {
		BeforeEach(func() {
			db.records = []Record{{ID: "a", ServiceName: "Netflix", BaseDomain: "netflix.com"}}
		})

		It("should apply the edit", func() {
			resp := doJSON("PATCH", "/api/subscriptions/a", map[string]any{"category": "streaming"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var record Record
			decode(resp, &record)
			Expect(record.Category).To(Equal("streaming"))
		})

		It("should 404 for an unknown id", func() {
			resp := doJSON("PATCH", "/api/subscriptions/missing", map[string]any{"category": "streaming"})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DELETE /api/subscriptions/{id}", func() {
		BeforeEach(func() {
			db.records = []Record{{ID: "a", BaseDomain: "netflix.com"}}
		})

		It("should delete and respond no content", func() {
			resp := doJSON("DELETE", "/api/subscriptions/a", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.records).To(BeEmpty())
		})

		It("should 404 for an unknown id", func() {
			resp := doJSON("DELETE", "/api/subscriptions/missing", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/subscriptions/{id}/cancellation", func() {
		BeforeEach(func() {
			db.records = []Record{
				{ID: "a", BaseDomain: "netflix.com"},
				{ID: "b", BaseDomain: "obscure.example"},
			}
		})

		It("should return the known cancellation page", func() {
			resp := doJSON("GET", "/api/subscriptions/a/cancellation", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var info cancellationInfo
			decode(resp, &info)
			Expect(info.Kind).To(Equal("known"))
			Expect(info.URL).To(Equal("https://www.netflix.com/cancelplan"))
		})

		It("should fall back to a web search for unknown domains", func() {
			resp := doJSON("GET", "/api/subscriptions/b/cancellation", nil)
			var info cancellationInfo
			decode(resp, &info)
			Expect(info.Kind).To(Equal("search"))
			Expect(info.URL).To(ContainSubstring("obscure.example+cancel+subscription"))
		})

		It("should 404 for an unknown id", func() {
			resp := doJSON("GET", "/api/subscriptions/missing/cancellation", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "secret"}
			newServer()
		})

		It("should reject requests without credentials", func() {
			resp := doJSON("GET", "/api/subscriptions", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept requests with the right credentials", func() {
			ghttpServer.AppendHandlers(server.ServeHTTP)
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/subscriptions", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "secret")

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
