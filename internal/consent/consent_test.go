package consent

import (
	"testing"

	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

func boolPtr(v bool) *bool { return &v }

func TestAllowedDestinationsStrict(t *testing.T) {
	configured := []enums.Destination{enums.DestinationGA4, enums.DestinationMeta, enums.DestinationTikTok}

	tests := []struct {
		name string
		sig  Signal
		want []enums.Destination
	}{
		{
			name: "trusted full grant allows everything",
			sig:  Signal{Marketing: boolPtr(true), Analytics: boolPtr(true), Trust: enums.TrustTrusted},
			want: []enums.Destination{enums.DestinationGA4, enums.DestinationMeta, enums.DestinationTikTok},
		},
		{
			name: "analytics only grant limits to GA4",
			sig:  Signal{Marketing: boolPtr(false), Analytics: boolPtr(true), Trust: enums.TrustTrusted},
			want: []enums.Destination{enums.DestinationGA4},
		},
		{
			name: "partial trust excludes everything in strict",
			sig:  Signal{Marketing: boolPtr(true), Analytics: boolPtr(true), Trust: enums.TrustPartial},
			want: []enums.Destination{},
		},
		{
			name: "missing signal is not a grant",
			sig:  Signal{Trust: enums.TrustTrusted},
			want: []enums.Destination{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AllowedDestinations(tt.sig, configured, enums.ConsentStrict)
			assertDestinations(t, got, tt.want)
		})
	}
}

func TestAllowedDestinationsBalanced(t *testing.T) {
	configured := []enums.Destination{enums.DestinationGA4, enums.DestinationMeta}

	tests := []struct {
		name string
		sig  Signal
		want []enums.Destination
	}{
		{
			name: "partial trust grant is admitted",
			sig:  Signal{Marketing: boolPtr(true), Analytics: boolPtr(true), Trust: enums.TrustPartial},
			want: []enums.Destination{enums.DestinationGA4, enums.DestinationMeta},
		},
		{
			name: "explicit denial still excludes",
			sig:  Signal{Marketing: boolPtr(false), Analytics: boolPtr(true), Trust: enums.TrustPartial},
			want: []enums.Destination{enums.DestinationGA4},
		},
		{
			name: "untrusted signal excludes even with grant",
			sig:  Signal{Marketing: boolPtr(true), Analytics: boolPtr(true), Trust: enums.TrustUntrusted},
			want: []enums.Destination{},
		},
		{
			name: "missing signal is still not a grant",
			sig:  Signal{Analytics: boolPtr(true), Trust: enums.TrustPartial},
			want: []enums.Destination{enums.DestinationGA4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AllowedDestinations(tt.sig, configured, enums.ConsentBalanced)
			assertDestinations(t, got, tt.want)
		})
	}
}

func TestAllowedDestinationsUnconfigured(t *testing.T) {
	sig := Signal{Marketing: boolPtr(true), Analytics: boolPtr(true), Trust: enums.TrustTrusted}

	got := AllowedDestinations(sig, nil, enums.ConsentStrict)
	if len(got) != 0 {
		t.Fatalf("expected no destinations without configuration, got %v", got)
	}
}

func TestSignalGranted(t *testing.T) {
	sig := Signal{Marketing: boolPtr(true)}

	granted, present := sig.Granted(enums.PurposeMarketing)
	if !present || !granted {
		t.Fatalf("expected marketing grant, got granted=%v present=%v", granted, present)
	}

	_, present = sig.Granted(enums.PurposeAnalytics)
	if present {
		t.Fatal("expected analytics signal to be absent")
	}
}

func assertDestinations(t *testing.T, got, want []enums.Destination) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
