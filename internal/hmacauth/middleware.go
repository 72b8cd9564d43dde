package hmacauth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Desk-Signature"
	HeaderTimestamp = "X-Desk-Timestamp"

	defaultMaxBody = 1 << 20
)

var (
	ErrMissingSignature = errors.New("missing command signature")
	ErrMissingTimestamp = errors.New("missing command timestamp")
	ErrStaleTimestamp   = errors.New("stale command timestamp")
	ErrInvalidSignature = errors.New("invalid command signature")
	ErrBodyTooLarge     = errors.New("command body too large")
)

type Verifier struct {
	Secret  string
	MaxSkew time.Duration
	MaxBody int64
	Now     func() time.Time
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v.Secret != "" && !safeMethod(r.Method) {
			if err := v.check(r); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func safeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func (v *Verifier) check(r *http.Request) error {
	sig := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderSignature)))
	if sig == "" {
		return ErrMissingSignature
	}
	ts := r.Header.Get(HeaderTimestamp)
	if err := v.fresh(ts); err != nil {
		return err
	}
	body, err := v.buffer(r)
	if err != nil {
		return err
	}
	want := Sign(v.Secret, r.Method, r.URL.Path, ts, body)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

// fresh rejects timestamps further than MaxSkew from now in either direction.
func (v *Verifier) fresh(ts string) error {
	if ts == "" {
		return ErrMissingTimestamp
	}
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMissingTimestamp
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	skew := now().Sub(time.Unix(secs, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.MaxSkew {
		return ErrStaleTimestamp
	}
	return nil
}

// buffer reads the body for signing and puts it back for the next handler.
func (v *Verifier) buffer(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	limit := v.MaxBody
	if limit <= 0 {
		limit = defaultMaxBody
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// Sign returns the hex HMAC-SHA256 a client sends in HeaderSignature. The
// method and path are covered so a signed command cannot be replayed against
// another route.
func Sign(secret, method, path, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	io.WriteString(mac, method+"\n"+path+"\n"+timestamp+"\n")
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
