package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
)

type trackingBody struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=8"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"tracking_number":"1Z99"}`},
		{name: "missing field", body: `{}`, wantErr: true},
		{name: "too long", body: `{"tracking_number":"123456789"}`, wantErr: true},
		{name: "unknown field", body: `{"tracking_number":"1Z","carrier":"ups"}`, wantErr: true},
		{name: "trailing object", body: `{"tracking_number":"1Z"}{}`, wantErr: true},
		{name: "not json", body: `tracking=1Z`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(tc.body))
			var dest trackingBody
			err := DecodeJSONBody(httptest.NewRecorder(), req, &dest)
			if tc.wantErr {
				if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseQueryEmail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?email=%20Jane@Example.com%20", nil)
	email, err := ParseQueryEmail(req, "email")
	if err != nil || email != "Jane@Example.com" {
		t.Fatalf("unexpected result %q %v", email, err)
	}

	for _, target := range []string{"/api/v1/orders", "/api/v1/orders?email=nope"} {
		_, err := ParseQueryEmail(httptest.NewRequest(http.MethodGet, target, nil), "email")
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", target, err)
		}
	}
}

func TestParseOptionalTime(t *testing.T) {
	got, err := ParseOptionalTime("", "since")
	if err != nil || got != nil {
		t.Fatalf("blank should be nil, got %v %v", got, err)
	}
	got, err = ParseOptionalTime("2024-03-01T09:00:00+02:00", "since")
	if err != nil || got.Hour() != 7 {
		t.Fatalf("unexpected %v %v", got, err)
	}
	if _, err := ParseOptionalTime("yesterday", "since"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
