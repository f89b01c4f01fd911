package worker

import (
	"fmt"
	"strings"

	"github.com/guardline/guardline/internal/db"
)

// ComposeMessage builds the human-readable alert text sent over SMS and
// used as the email body. The location line is only included when the
// trigger captured coordinates.
func ComposeMessage(delivery *db.PendingDelivery) string {
	name := "A Guardline user"
	if delivery.OwnerName != nil && *delivery.OwnerName != "" {
		name = *delivery.OwnerName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EMERGENCY ALERT: %s has triggered an SOS at %s.",
		name, delivery.Alert.CreatedAt.UTC().Format("15:04 UTC, Jan 2"))

	if delivery.Alert.Latitude != nil && delivery.Alert.Longitude != nil {
		fmt.Fprintf(&b, " Location: https://maps.google.com/?q=%f,%f",
			*delivery.Alert.Latitude, *delivery.Alert.Longitude)
	} else {
		b.WriteString(" Location unavailable.")
	}

	if delivery.OwnerPhone != nil && *delivery.OwnerPhone != "" {
		fmt.Fprintf(&b, " Call them at %s.", *delivery.OwnerPhone)
	}

	return b.String()
}

// ComposeSubject builds the email subject line.
func ComposeSubject(delivery *db.PendingDelivery) string {
	name := "a Guardline user"
	if delivery.OwnerName != nil && *delivery.OwnerName != "" {
		name = *delivery.OwnerName
	}
	return fmt.Sprintf("Emergency SOS from %s", name)
}
