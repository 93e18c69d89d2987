package paystack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVerifySuccess(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"status":true,"data":{"status":"success","amount":100000,"customer":{"email":"tunde.ade@example.com"}}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_secret")
	payment, err := client.Verify(context.Background(), "R1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if gotPath != "/transaction/verify/R1" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer sk_test_secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if payment.Amount != 100_000 || payment.PayerEmail != "tunde.ade@example.com" {
		t.Fatalf("unexpected payment %+v", payment)
	}
}

func TestVerifyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":true,"data":{"status":"failed","amount":100000}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_secret")
	if _, err := client.Verify(context.Background(), "R1"); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestVerifyRejectedIsStable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status":false,"data":{"status":""}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_secret")
	for i := 0; i < 2; i++ {
		if _, err := client.Verify(context.Background(), "ghost"); !errors.Is(err, ErrRejected) {
			t.Fatalf("attempt %d: expected ErrRejected, got %v", i, err)
		}
	}
}

func TestVerifyMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `<html>gateway error</html>`,
		"missing amount": `{"status":true,"data":{"status":"success"}}`,
		"zero amount":    `{"status":true,"data":{"status":"success","amount":0}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "sk_test_secret")
			if _, err := client.Verify(context.Background(), "R1"); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestVerifyServerErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_secret")
	if _, err := client.Verify(context.Background(), "R1"); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestVerifyConnectionFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, "sk_test_secret")
	if _, err := client.Verify(context.Background(), "R1"); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}
