package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from, to RequestStatus
	}{
		{RequestPending, RequestPaymentRequired},
		{RequestPending, RequestRejected},
		{RequestPaymentRequired, RequestApproved},
		{RequestPaymentRequired, RequestRejected},
		{RequestApproved, RequestReadyForPickup},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct {
		from, to RequestStatus
	}{
		{RequestPending, RequestApproved},
		{RequestPending, RequestReadyForPickup},
		{RequestApproved, RequestRejected},
		{RequestRejected, RequestPending},
		{RequestReadyForPickup, RequestApproved},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParseDocumentType(t *testing.T) {
	cases := map[string]DocumentType{
		"TOR":           DocumentTOR,
		"tor":           DocumentTOR,
		"grade slip":    DocumentGradeSlip,
		"GRADE_SLIP":    DocumentGradeSlip,
		" good moral ":  DocumentGoodMoral,
		"Certification": DocumentCertification,
		"diploma":       DocumentDiploma,
	}
	for raw, want := range cases {
		got, ok := ParseDocumentType(raw)
		assert.True(t, ok, "input %q", raw)
		assert.Equal(t, want, got)
	}

	_, ok := ParseDocumentType("FORM_137")
	assert.False(t, ok)
}
