package chat

import "strings"

// DefaultAvatarURL is shown when a customer record carries no avatar.
const DefaultAvatarURL = "/assets/avatar-placeholder.png"

// ParseStatus normalizes a wire status value. Unknown or empty values
// degrade to WAITING rather than failing: a session we cannot classify
// still needs agent attention.
func ParseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ACTIVE":
		return StatusActive
	case "WAITING":
		return StatusWaiting
	case "CLOSED":
		return StatusClosed
	default:
		return StatusWaiting
	}
}

// DisplayName resolves a customer display name with fallback:
// name -> local-part of email -> id.
func DisplayName(name, email, id string) string {
	if name != "" {
		return name
	}
	if local := emailLocalPart(email); local != "" {
		return local
	}
	return id
}

// AvatarOrDefault substitutes the placeholder for a missing avatar.
func AvatarOrDefault(url string) string {
	if url == "" {
		return DefaultAvatarURL
	}
	return url
}

func emailLocalPart(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return email[:at]
}
