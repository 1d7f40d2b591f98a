package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/posture/internal/adapters/frames"
	"github.com/okian/posture/internal/adapters/history"
	repository "github.com/okian/posture/internal/adapters/repository"
	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/auth"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/pose"
	"github.com/okian/posture/internal/framegen"
	"github.com/okian/posture/internal/platform/clock"
	. "github.com/smartystreets/goconvey/convey"
)

func newService(clk *clock.Fake, opts ...service.Option) (*service.Service, *auth.Verifier) {
	verifier, err := auth.NewVerifier("test-secret", auth.WithClock(clk.Now))
	if err != nil {
		panic(err)
	}
	base := []service.Option{
		service.WithClock(clk),
		service.WithVerifier(verifier),
		service.WithStore(repository.NewMemoryStore(repository.WithClock(clk.Now))),
	}
	return service.New(append(base, opts...)...), verifier
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a service that has not started", t, func() {
		svc, _ := newService(clock.NewFake(epoch))
		ctx := context.Background()

		Convey("Calls report it is not started", func() {
			_, err := svc.OpenPractice(ctx, nil, nil, "")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.History(ctx, "u1", 10)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.Poses(), ShouldBeEmpty)
			So(svc.GetStats()["started"], ShouldBeFalse)
		})

		Convey("When started", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("The built-in poses are listed in order", func() {
				poses := svc.Poses()
				So(len(poses), ShouldEqual, 3)
				So(poses[0].ID, ShouldEqual, pose.MountainID)
				So(poses[2].Name, ShouldEqual, "Warrior II")
				So(svc.GetStats()["poses"], ShouldEqual, 3)
			})
		})
	})
}

func TestServicePractice(t *testing.T) {
	Convey("Given a started service", t, func() {
		clk := clock.NewFake(epoch)
		svc, verifier := newService(clk)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		token, err := verifier.Issue("user-1", time.Hour)
		So(err, ShouldBeNil)

		Convey("An invalid token is refused", func() {
			_, err := svc.OpenPractice(ctx, nil, nil, "not-a-token")
			So(errors.Is(err, auth.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("A denied camera fails Start until granted", func() {
			p, err := svc.OpenPractice(ctx, &fakeObserver{}, &fakeSpeaker{}, "")
			So(err, ShouldBeNil)
			p.SetCamera(false, "")
			err = p.Start(ctx, pose.TreeID)
			So(errors.Is(err, service.ErrAcquisition), ShouldBeTrue)
			So(errors.Is(err, frames.ErrSourceUnavailable), ShouldBeTrue)

			p.SetCamera(true, "")
			So(p.Start(ctx, pose.TreeID), ShouldBeNil)
			So(p.Close(ctx), ShouldBeNil)
		})

		Convey("Frames fed before Start are refused", func() {
			p, err := svc.OpenPractice(ctx, nil, nil, "")
			So(err, ShouldBeNil)
			So(errors.Is(p.Feed(ctx, framegen.Tree()), frames.ErrSourceStopped), ShouldBeTrue)
			So(p.Close(ctx), ShouldBeNil)
		})

		Convey("When an authenticated practice runs a full session", func() {
			observer := &fakeObserver{}
			p, err := svc.OpenPractice(ctx, observer, &fakeSpeaker{}, token)
			So(err, ShouldBeNil)
			So(svc.GetStats()["openPractices"], ShouldEqual, 1)

			So(p.Start(ctx, pose.TreeID), ShouldBeNil)
			for i := 0; i < 20; i++ {
				So(p.Feed(ctx, framegen.Tree()), ShouldBeNil)
			}
			So(eventually(func() bool { return p.Snapshot().Score > 90 }), ShouldBeTrue)
			clk.Advance(9 * time.Second)
			rec, saved := p.Stop(ctx)
			So(saved, ShouldBeTrue)
			So(p.Close(ctx), ShouldBeNil)

			Convey("Then the session is in the user's history", func() {
				So(svc.GetStats()["openPractices"], ShouldEqual, 0)
				rows, err := svc.History(ctx, "user-1", 0)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 1)
				So(rows[0].PoseName, ShouldEqual, "Tree Pose")
				So(rows[0].DurationSeconds, ShouldEqual, 9)
				So(rows[0].AccuracyScore, ShouldEqual, rec.AccuracyScore)
				So(observer.savedCount(), ShouldEqual, 1)

				stats, err := svc.Stats(ctx, "user-1")
				So(err, ShouldBeNil)
				So(stats, ShouldResemble, model.PracticeStats{TotalSessions: 1, TotalDuration: 9, AverageScore: rec.AccuracyScore})

				got, err := svc.Session(ctx, "user-1", rows[0].ID)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, rows[0].ID)
				_, err = svc.Session(ctx, "user-2", rows[0].ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("An anonymous practice never saves", func() {
			p, err := svc.OpenPractice(ctx, nil, nil, "")
			So(err, ShouldBeNil)
			So(p.Start(ctx, pose.MountainID), ShouldBeNil)
			clk.Advance(20 * time.Second)
			_, saved := p.Stop(ctx)
			So(saved, ShouldBeTrue)
			So(p.Close(ctx), ShouldBeNil)
			rows, err := svc.History(ctx, "user-1", 0)
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
		})

		Convey("Stop closes practices that are still open", func() {
			p, err := svc.OpenPractice(ctx, nil, nil, token)
			So(err, ShouldBeNil)
			So(p.Start(ctx, pose.MountainID), ShouldBeNil)
			clk.Advance(7 * time.Second)
			svc.Stop()
			So(p.Snapshot().Active, ShouldBeFalse)
			So(errors.Is(p.Start(ctx, pose.MountainID), service.ErrClosed), ShouldBeTrue)
		})
	})
}

func TestServiceHistoryLimit(t *testing.T) {
	Convey("Given a user with more sessions than the cap", t, func() {
		clk := clock.NewFake(epoch)
		svc, _ := newService(clk, service.WithMaxHistoryLimit(5))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		for i := 0; i < 8; i++ {
			clk.Advance(time.Minute)
			_, err := svc.SaveSession(ctx, "u1", model.SessionRecord{PoseName: "Tree Pose", DurationSeconds: 30, AccuracyScore: 70 + i})
			So(err, ShouldBeNil)
		}

		Convey("History returns at most the cap, newest first", func() {
			rows, err := svc.History(ctx, "u1", 100)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 5)
			So(rows[0].AccuracyScore, ShouldEqual, 77)

			rows, err = svc.History(ctx, "u1", 2)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
		})
	})
}

func TestServiceRemoteHistory(t *testing.T) {
	Convey("Given a service forwarding to a remote history service", t, func() {
		var posts atomic.Int32
		var authHeader atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.URL.Path == history.SessionsPath {
				posts.Add(1)
				authHeader.Store(r.Header.Get("Authorization"))
				w.WriteHeader(http.StatusCreated)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client, err := history.NewClient(srv.URL)
		So(err, ShouldBeNil)
		clk := clock.NewFake(epoch)
		svc, _ := newService(clk, service.WithHistoryClient(client))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("A finished session is posted once with the caller's token", func() {
			p, err := svc.OpenPractice(ctx, nil, nil, "remote-token")
			So(err, ShouldBeNil)
			So(p.Start(ctx, pose.Warrior2ID), ShouldBeNil)
			clk.Advance(6 * time.Second)
			_, saved := p.Stop(ctx)
			So(saved, ShouldBeTrue)
			So(p.Close(ctx), ShouldBeNil)
			So(int(posts.Load()), ShouldEqual, 1)
			So(authHeader.Load(), ShouldEqual, "Bearer remote-token")
		})
	})
}
