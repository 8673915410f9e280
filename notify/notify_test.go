package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSendGrid(t *testing.T) {
	var body struct {
		Subject          string `json:"subject"`
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sg-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sg := NewSendGrid(SendGridConfig{
		APIKey:      "sg-key",
		FromAddress: "no-reply@test.local",
		FromName:    "test",
		Host:        srv.URL,
	}, quietLog())

	err := sg.Send(context.Background(), Message{To: "user@test.local", Subject: "Payment Successful", Body: "thanks"})
	if err != nil {
		t.Fatal(err)
	}

	if body.Subject != "Payment Successful" {
		t.Fatalf("unexpected subject %q", body.Subject)
	}
	if len(body.Personalizations) != 1 || body.Personalizations[0].To[0].Email != "user@test.local" {
		t.Fatalf("unexpected recipients %+v", body.Personalizations)
	}
}

func TestSendGridFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sg := NewSendGrid(SendGridConfig{APIKey: "k", Host: srv.URL}, quietLog())
	if err := sg.Send(context.Background(), Message{To: "a@b.c"}); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}
