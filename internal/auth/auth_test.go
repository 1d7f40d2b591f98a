package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/okian/posture/internal/auth"
	. "github.com/smartystreets/goconvey/convey"
)

func TestVerifier(t *testing.T) {
	Convey("Given a verifier", t, func() {
		now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		v, err := auth.NewVerifier("s3cret", auth.WithClock(clock))
		So(err, ShouldBeNil)

		Convey("An issued token verifies to its subject", func() {
			tok, err := v.Issue("user-1", time.Hour)
			So(err, ShouldBeNil)
			sub, err := v.Verify("Bearer " + tok)
			So(err, ShouldBeNil)
			So(sub, ShouldEqual, "user-1")
		})

		Convey("An expired token is unauthorized", func() {
			tok, _ := v.Issue("user-1", time.Minute)
			later, _ := auth.NewVerifier("s3cret", auth.WithClock(func() time.Time { return now.Add(time.Hour) }))
			_, err := later.Verify(tok)
			So(errors.Is(err, auth.ErrUnauthorized), ShouldBeTrue)
			So(errors.Is(err, auth.ErrTokenExpired), ShouldBeTrue)
		})

		Convey("A token signed with another secret is unauthorized", func() {
			other, _ := auth.NewVerifier("other", auth.WithClock(clock))
			tok, _ := other.Issue("user-1", time.Hour)
			_, err := v.Verify(tok)
			So(errors.Is(err, auth.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("A token without subject is unauthorized", func() {
			tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}).SignedString([]byte("s3cret"))
			_, err := v.Verify(tok)
			So(errors.Is(err, auth.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("Empty and garbage tokens are unauthorized", func() {
			_, err := v.Verify("")
			So(errors.Is(err, auth.ErrUnauthorized), ShouldBeTrue)
			_, err = v.Verify("Bearer not-a-jwt")
			So(errors.Is(err, auth.ErrUnauthorized), ShouldBeTrue)
		})
	})

	Convey("A verifier needs a secret", t, func() {
		_, err := auth.NewVerifier(" ")
		So(errors.Is(err, auth.ErrNoSecret), ShouldBeTrue)
	})
}
