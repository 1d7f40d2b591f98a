package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/posture/internal/adapters/http/api"
	repository "github.com/okian/posture/internal/adapters/repository"
	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/auth"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/platform/clock"
	"github.com/okian/posture/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *service.Service
	srv      *httptest.Server
	clk      *clock.Fake
	verifier *auth.Verifier
}

func newFixture() *fixture {
	clk := clock.NewFake(epoch)
	verifier, err := auth.NewVerifier("api-secret", auth.WithClock(clk.Now))
	if err != nil {
		panic(err)
	}
	svc := service.New(
		service.WithClock(clk),
		service.WithVerifier(verifier),
		service.WithStore(repository.NewMemoryStore(repository.WithClock(clk.Now))),
	)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	server := api.NewServer(svc, svc)
	server.Register(context.Background(), mux, svc)
	return &fixture{svc: svc, srv: httptest.NewServer(mux), clk: clk, verifier: verifier}
}

func (f *fixture) close() {
	f.srv.Close()
	f.svc.Stop()
}

func (f *fixture) token(user string) string {
	tok, err := f.verifier.Issue(user, time.Hour)
	if err != nil {
		panic(err)
	}
	return tok
}

func (f *fixture) do(method, path, token, body string) (*http.Response, []byte) {
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		panic(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		panic(err)
	}
	return resp, data
}

func TestCatalogueRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		f := newFixture()
		defer f.close()

		Convey("GET /poses lists the built-in poses", func() {
			resp, body := f.do(http.MethodGet, "/poses", "", "")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			var poses []model.PoseInfo
			So(json.Unmarshal(body, &poses), ShouldBeNil)
			So(len(poses), ShouldEqual, 3)
			So(poses[1].ID, ShouldEqual, "tree")
		})

		Convey("GET /stats reports the service state", func() {
			resp, body := f.do(http.MethodGet, "/stats", "", "")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, `"started":true`)
		})

		Convey("GET /healthz serves metrics", func() {
			resp, body := f.do(http.MethodGet, "/healthz", "", "")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, "posture_practice_")
		})
	})
}

func TestHistoryRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		f := newFixture()
		defer f.close()
		token := f.token("user-1")

		Convey("Requests without a valid token are refused", func() {
			resp, body := f.do(http.MethodGet, "/ai-practice/history", "", "")
			So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
			So(string(body), ShouldContainSubstring, `"code":"unauthorized"`)

			resp, _ = f.do(http.MethodGet, "/ai-practice/stats", "garbage", "")
			So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Malformed bodies are rejected", func() {
			resp, _ := f.do(http.MethodPost, "/ai-practice/sessions", token, `{`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)

			resp, body := f.do(http.MethodPost, "/ai-practice/sessions", token, `{"pose_name":"Tree Pose","duration_seconds":10}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(string(body), ShouldContainSubstring, "accuracy_score")

			resp, _ = f.do(http.MethodPost, "/ai-practice/sessions", token, `{"pose_name":"Tree Pose","duration_seconds":10,"accuracy_score":140}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When sessions are saved", func() {
			resp, body := f.do(http.MethodPost, "/ai-practice/sessions", token, `{"pose_name":"Tree Pose","duration_seconds":40,"accuracy_score":80}`)
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)
			var saved struct {
				Message string                `json:"message"`
				Session model.PracticeSession `json:"session"`
			}
			So(json.Unmarshal(body, &saved), ShouldBeNil)
			So(saved.Message, ShouldEqual, "Session saved successfully")
			So(saved.Session.UserID, ShouldEqual, "user-1")

			f.clk.Advance(time.Minute)
			resp, _ = f.do(http.MethodPost, "/ai-practice/sessions", token, `{"pose_name":"Warrior II","duration_seconds":20,"accuracy_score":61}`)
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)

			Convey("Then history is newest first and limited", func() {
				resp, body := f.do(http.MethodGet, "/ai-practice/history", token, "")
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var rows []model.PracticeSession
				So(json.Unmarshal(body, &rows), ShouldBeNil)
				So(len(rows), ShouldEqual, 2)
				So(rows[0].PoseName, ShouldEqual, "Warrior II")

				_, body = f.do(http.MethodGet, "/ai-practice/history?limit=1", token, "")
				So(json.Unmarshal(body, &rows), ShouldBeNil)
				So(len(rows), ShouldEqual, 1)

				resp, _ = f.do(http.MethodGet, "/ai-practice/history?limit=x", token, "")
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then stats aggregate with a truncated average", func() {
				_, body := f.do(http.MethodGet, "/ai-practice/stats", token, "")
				var stats model.PracticeStats
				So(json.Unmarshal(body, &stats), ShouldBeNil)
				So(stats, ShouldResemble, model.PracticeStats{TotalSessions: 2, TotalDuration: 60, AverageScore: 70})
			})

			Convey("Then a session is only visible to its owner", func() {
				resp, _ := f.do(http.MethodGet, "/ai-practice/sessions/"+saved.Session.ID, token, "")
				So(resp.StatusCode, ShouldEqual, http.StatusOK)

				resp, _ = f.do(http.MethodGet, "/ai-practice/sessions/"+saved.Session.ID, f.token("user-2"), "")
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)

				_, body := f.do(http.MethodGet, "/ai-practice/history", f.token("user-2"), "")
				So(strings.TrimSpace(string(body)), ShouldEqual, "[]")
			})
		})
	})
}
