package protocol

// IkeErrorCode is a NotificationType usable as a Go error. Decode
// failures wrap one of these so the dispatcher can map the failure onto
// the notification to send.
type IkeErrorCode NotificationType

const (
	ERR_UNSUPPORTED_CRITICAL_PAYLOAD IkeErrorCode = IkeErrorCode(UNSUPPORTED_CRITICAL_PAYLOAD)
	ERR_INVALID_IKE_SPI              IkeErrorCode = IkeErrorCode(INVALID_IKE_SPI)
	ERR_INVALID_MAJOR_VERSION        IkeErrorCode = IkeErrorCode(INVALID_MAJOR_VERSION)
	ERR_INVALID_SYNTAX               IkeErrorCode = IkeErrorCode(INVALID_SYNTAX)
	ERR_INVALID_MESSAGE_ID           IkeErrorCode = IkeErrorCode(INVALID_MESSAGE_ID)
	ERR_INVALID_SPI                  IkeErrorCode = IkeErrorCode(INVALID_SPI)
	ERR_NO_PROPOSAL_CHOSEN           IkeErrorCode = IkeErrorCode(NO_PROPOSAL_CHOSEN)
	ERR_INVALID_KE_PAYLOAD           IkeErrorCode = IkeErrorCode(INVALID_KE_PAYLOAD)
	ERR_AUTHENTICATION_FAILED        IkeErrorCode = IkeErrorCode(AUTHENTICATION_FAILED)
	ERR_SINGLE_PAIR_REQUIRED         IkeErrorCode = IkeErrorCode(SINGLE_PAIR_REQUIRED)
	ERR_NO_ADDITIONAL_SAS            IkeErrorCode = IkeErrorCode(NO_ADDITIONAL_SAS)
	ERR_INTERNAL_ADDRESS_FAILURE     IkeErrorCode = IkeErrorCode(INTERNAL_ADDRESS_FAILURE)
	ERR_FAILED_CP_REQUIRED           IkeErrorCode = IkeErrorCode(FAILED_CP_REQUIRED)
	ERR_TS_UNACCEPTABLE              IkeErrorCode = IkeErrorCode(TS_UNACCEPTABLE)
	ERR_INVALID_SELECTORS            IkeErrorCode = IkeErrorCode(INVALID_SELECTORS)
	ERR_TEMPORARY_FAILURE            IkeErrorCode = IkeErrorCode(TEMPORARY_FAILURE)
	ERR_CHILD_SA_NOT_FOUND           IkeErrorCode = IkeErrorCode(CHILD_SA_NOT_FOUND)
)

func (e IkeErrorCode) Error() string {
	return NotificationType(e).String()
}

// GetIkeErrorCode reports whether the notification is one of the rfc7296
// error types.
func GetIkeErrorCode(n NotificationType) (IkeErrorCode, bool) {
	switch n {
	case UNSUPPORTED_CRITICAL_PAYLOAD, INVALID_IKE_SPI, INVALID_MAJOR_VERSION,
		INVALID_SYNTAX, INVALID_MESSAGE_ID, INVALID_SPI, NO_PROPOSAL_CHOSEN,
		INVALID_KE_PAYLOAD, AUTHENTICATION_FAILED, SINGLE_PAIR_REQUIRED,
		NO_ADDITIONAL_SAS, INTERNAL_ADDRESS_FAILURE, FAILED_CP_REQUIRED,
		TS_UNACCEPTABLE, INVALID_SELECTORS, TEMPORARY_FAILURE,
		CHILD_SA_NOT_FOUND:
		return IkeErrorCode(n), true
	}
	return 0, false
}
