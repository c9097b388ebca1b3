package chat

import "errors"

var (
	ErrSelfConversation      = errors.New("chat: conversation requires two distinct users")
	ErrNotParticipant        = errors.New("chat: not a conversation participant")
	ErrParticipantIneligible = errors.New("chat: user may not participate in conversations")
	ErrConversationNotFound  = errors.New("chat: conversation not found")
	ErrMessageNotFound       = errors.New("chat: message not found")
	ErrRecipientNotFound     = errors.New("chat: recipient not found")
	ErrListingNotFound       = errors.New("chat: listing not found")
	ErrDeleteForbidden       = errors.New("chat: message can only be deleted by its sender or a moderator")

	ErrBodyRequired          = errors.New("chat: message body is required")
	ErrBodyTooLong           = errors.New("chat: message body exceeds maximum length")
	ErrInvalidKind           = errors.New("chat: invalid message kind")
	ErrTooManyAttachments    = errors.New("chat: attachment limit exceeded")
	ErrAttachmentKeyRequired = errors.New("chat: attachment key is required")
	ErrMessageAlreadyRead    = errors.New("chat: message already read")
	ErrOfferPayloadRequired  = errors.New("chat: offer message requires an offer payload")
	ErrOfferPriceInvalid     = errors.New("chat: offer price must be positive")
	ErrOfferListingRequired  = errors.New("chat: offer must reference a listing")
)

// IsValidation reports whether err belongs to the input-validation family,
// as opposed to authorization or lookup failures.
func IsValidation(err error) bool {
	for _, candidate := range []error{
		ErrSelfConversation,
		ErrBodyRequired,
		ErrBodyTooLong,
		ErrInvalidKind,
		ErrTooManyAttachments,
		ErrAttachmentKeyRequired,
		ErrMessageAlreadyRead,
		ErrOfferPayloadRequired,
		ErrOfferPriceInvalid,
		ErrOfferListingRequired,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}
