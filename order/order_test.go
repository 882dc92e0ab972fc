// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

package order

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseKindRoundTrip(t *testing.T) {
	for kind, name := range kindNames {
		if got := ParseKind(name); got != kind {
			t.Errorf("ParseKind(%q) = %v, want %v", name, got, kind)
		}
		if got := kind.String(); got != name {
			t.Errorf("%v.String() = %q, want %q", kind, got, name)
		}
	}
	if got := ParseKind("wyvern"); got != KindUnknown {
		t.Errorf("ParseKind(wyvern) = %v, want KindUnknown", got)
	}
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		kind             Kind
		batchable        bool
		partialFillable  bool
		externallySigned bool
		directBidFill    bool
	}{
		{KindSeaport, true, false, false, false},
		{KindSeaportPartial, true, true, false, false},
		{KindLooksRare, true, false, false, false},
		{KindX2Y2, true, false, true, false},
		{KindZeroExV4ERC721, true, false, true, false},
		{KindZeroExV4ERC1155, true, true, true, false},
		{KindBlur, false, false, false, true},
		{KindManifold, false, false, false, true},
		{KindCryptoPunks, true, false, false, false},
		{KindSudoswap, true, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Batchable(); got != tt.batchable {
				t.Errorf("Batchable() = %v, want %v", got, tt.batchable)
			}
			if got := tt.kind.FeeCapable(); got != tt.batchable {
				t.Errorf("FeeCapable() = %v, want %v", got, tt.batchable)
			}
			if got := tt.kind.PartialFillable(); got != tt.partialFillable {
				t.Errorf("PartialFillable() = %v, want %v", got, tt.partialFillable)
			}
			if got := tt.kind.ExternallySigned(); got != tt.externallySigned {
				t.Errorf("ExternallySigned() = %v, want %v", got, tt.externallySigned)
			}
			if got := tt.kind.DirectBidFill(); got != tt.directBidFill {
				t.Errorf("DirectBidFill() = %v, want %v", got, tt.directBidFill)
			}
		})
	}
}

func TestListingDetailFillAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount *big.Int
		want   int64
	}{
		{"nil defaults to one", nil, 1},
		{"zero defaults to one", big.NewInt(0), 1},
		{"explicit quantity", big.NewInt(5), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &ListingDetail{Amount: tt.amount}
			if got := d.FillAmount(); got.Int64() != tt.want {
				t.Errorf("FillAmount() = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestListingDetailKindNilOrder(t *testing.T) {
	d := &ListingDetail{}
	if got := d.Kind(); got != KindUnknown {
		t.Errorf("Kind() with nil order = %v, want KindUnknown", got)
	}
}

func TestStaticOrder(t *testing.T) {
	s := &Static{
		OrderKind: KindSeaport,
		Price:     big.NewInt(1000),
		Raw:       []byte{0x01, 0x02},
	}

	if s.FillableAmount().Int64() != 1 {
		t.Errorf("FillableAmount() with no quantity = %s, want 1", s.FillableAmount())
	}

	raw, err := s.RawEncodedForm()
	if err != nil {
		t.Fatalf("RawEncodedForm() error: %v", err)
	}
	raw[0] = 0xff
	again, _ := s.RawEncodedForm()
	if again[0] != 0x01 {
		t.Error("RawEncodedForm() must return a copy, not the backing slice")
	}

	if _, err := s.MatchingCounterOrder(common.Address{}); err == nil {
		t.Error("MatchingCounterOrder() with no counter order must fail")
	}

	empty := &Static{OrderKind: KindSeaport}
	if _, err := empty.RawEncodedForm(); err == nil {
		t.Error("RawEncodedForm() with no raw bytes must fail")
	}
}
