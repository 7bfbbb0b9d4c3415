package helpers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// TicketRef is what a ticket QR code carries.
type TicketRef struct {
	TicketID string
	Username string
	EventID  string
}

func generateSignature(ref TicketRef, secretKey string) string {
	data := fmt.Sprintf("%s:%s:%s", ref.TicketID, ref.Username, ref.EventID)
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func GenerateQRCodeData(ref TicketRef, secretKey string) string {
	return fmt.Sprintf("ticket:%s;user:%s;event:%s;signature:%s",
		ref.TicketID,
		ref.Username,
		ref.EventID,
		generateSignature(ref, secretKey),
	)
}

// ParseQRCodeData checks the format and the signature of a scanned QR payload.
func ParseQRCodeData(qrData, secretKey string) (TicketRef, error) {
	parts := strings.Split(qrData, ";")
	prefixes := []string{"ticket:", "user:", "event:", "signature:"}
	if len(parts) != len(prefixes) {
		return TicketRef{}, fmt.Errorf("invalid QR data format")
	}
	for i, p := range prefixes {
		if !strings.HasPrefix(parts[i], p) {
			return TicketRef{}, fmt.Errorf("invalid QR data format")
		}
		parts[i] = strings.TrimPrefix(parts[i], p)
	}

	ref := TicketRef{TicketID: parts[0], Username: parts[1], EventID: parts[2]}
	expected := generateSignature(ref, secretKey)
	if !hmac.Equal([]byte(expected), []byte(parts[3])) {
		return TicketRef{}, fmt.Errorf("invalid QR signature")
	}
	return ref, nil
}
