package auth_test

import (
	"testing"

	"github.com/sysprog/idmcore/auth"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("ADS_SVC_IDM_SECRET", "hunter2")

	secret, err := auth.Env{}.Get("svc-idm", "ads")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if secret != "hunter2" {
		t.Errorf("secret = %q", secret)
	}

	if _, err := (auth.Env{}).Get("nobody", "ads"); err == nil {
		t.Error("expected error for unset secret")
	}
}

func TestStaticProvider(t *testing.T) {
	p := auth.Static{"svc-idm@ads": "pw"}
	secret, err := p.Get("svc-idm", "ads")
	if err != nil || secret != "pw" {
		t.Errorf("Get = (%q, %v)", secret, err)
	}
	if _, err := p.Get("svc-idm", "other"); err == nil {
		t.Error("expected error for missing realm")
	}
}
