package simulate

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/posture/internal/adapters/http/api"
	repository "github.com/okian/posture/internal/adapters/repository"
	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/auth"
	"github.com/okian/posture/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type target struct {
	svc      *service.Service
	store    *repository.MemoryStore
	srv      *httptest.Server
	verifier *auth.Verifier
}

func newTarget() *target {
	verifier, err := auth.NewVerifier("simulate-secret")
	if err != nil {
		panic(err)
	}
	store := repository.NewMemoryStore()
	svc := service.New(
		service.WithVerifier(verifier),
		service.WithStore(store),
		service.WithMinSessionSeconds(0),
	)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux, svc)
	return &target{svc: svc, store: store, srv: httptest.NewServer(mux), verifier: verifier}
}

func (t *target) close() {
	t.srv.Close()
	t.svc.Stop()
}

func quickConfig(baseURL string) *Config {
	return &Config{
		BaseURL:    baseURL,
		Pose:       "tree",
		Sessions:   1,
		Duration:   1100 * time.Millisecond,
		FPS:        20,
		FaultRatio: 0,
		Seed:       7,
		Timeout:    2 * time.Second,
		SaveWait:   2 * time.Second,
	}
}

func TestParseFlags(t *testing.T) {
	Convey("Given simulator flags", t, func() {
		var out bytes.Buffer

		Convey("Defaults are applied", func() {
			cfg, help, err := ParseFlags(nil, &out)
			So(err, ShouldBeNil)
			So(help, ShouldBeFalse)
			So(cfg.BaseURL, ShouldEqual, DefaultBaseURL)
			So(cfg.Sessions, ShouldEqual, 1)
			So(cfg.Workers, ShouldEqual, 1)
			So(cfg.FPS, ShouldEqual, DefaultFPS)
		})

		Convey("Values are parsed and normalized", func() {
			cfg, _, err := ParseFlags([]string{"-url", "localhost:9000/", "-sessions", "4", "-workers", "9", "-pose", "warrior2"}, &out)
			So(err, ShouldBeNil)
			So(cfg.BaseURL, ShouldEqual, "http://localhost:9000")
			So(cfg.Workers, ShouldEqual, 4)
			So(cfg.Pose, ShouldEqual, "warrior2")
		})

		Convey("Help short-circuits", func() {
			_, help, err := ParseFlags([]string{"-help"}, &out)
			So(err, ShouldBeNil)
			So(help, ShouldBeTrue)
			ShowHelp(&out)
			So(out.String(), ShouldContainSubstring, "Posture Practice Simulator")
		})

		Convey("An invalid fault ratio is rejected", func() {
			_, _, err := ParseFlags([]string{"-faults", "1.5"}, &out)
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestPracticeURL(t *testing.T) {
	Convey("The websocket endpoint follows the base scheme", t, func() {
		u, err := practiceURL("http://host:8080")
		So(err, ShouldBeNil)
		So(u, ShouldEqual, "ws://host:8080/practice/ws")

		u, err = practiceURL("https://example.com/base/")
		So(err, ShouldBeNil)
		So(u, ShouldEqual, "wss://example.com/base/practice/ws")
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running posture service", t, func() {
		tgt := newTarget()
		defer tgt.close()
		ctx := context.Background()

		Convey("An anonymous session streams frames and is not saved", func() {
			stats, err := Run(ctx, quickConfig(tgt.srv.URL))
			So(err, ShouldBeNil)
			So(stats.SessionsRun, ShouldEqual, 1)
			So(stats.SessionsFailed, ShouldEqual, 0)
			So(stats.FramesSent, ShouldBeGreaterThan, 5)
			So(stats.StatesReceived, ShouldBeGreaterThan, 0)
			So(stats.SessionsSaved, ShouldEqual, 0)
			So(stats.AverageScore, ShouldBeGreaterThan, 50)
		})

		Convey("An authenticated session is saved to history", func() {
			tok, err := tgt.verifier.Issue("sim-user", time.Hour)
			So(err, ShouldBeNil)
			cfg := quickConfig(tgt.srv.URL)
			cfg.Token = tok

			stats, err := Run(ctx, cfg)
			So(err, ShouldBeNil)
			So(stats.SessionsSaved, ShouldEqual, 1)

			rows, err := tgt.svc.History(ctx, "sim-user", 10)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 1)
			So(rows[0].PoseName, ShouldEqual, "Tree Pose")
		})

		Convey("A pose the service does not offer is rejected", func() {
			cfg := quickConfig(tgt.srv.URL)
			cfg.Pose = "lotus"
			_, err := Run(ctx, cfg)
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("A bad token fails verification", func() {
			cfg := quickConfig(tgt.srv.URL)
			cfg.Token = "not-a-token"
			_, err := Run(ctx, cfg)
			So(errors.Is(err, ErrVerification), ShouldBeTrue)
		})
	})

	Convey("Given no service", t, func() {
		cfg := quickConfig("http://127.0.0.1:1")
		cfg.Timeout = 200 * time.Millisecond
		_, err := Run(context.Background(), cfg)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "health check")
	})
}
