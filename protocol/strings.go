package protocol

import "fmt"

var payloadTypeNames = map[PayloadType]string{
	PayloadTypeNone:    "None",
	PayloadTypeSA:      "SA",
	PayloadTypeKE:      "KE",
	PayloadTypeIDi:     "IDi",
	PayloadTypeIDr:     "IDr",
	PayloadTypeCERT:    "CERT",
	PayloadTypeCERTREQ: "CERTREQ",
	PayloadTypeAUTH:    "AUTH",
	PayloadTypeNonce:   "No",
	PayloadTypeN:       "N",
	PayloadTypeD:       "D",
	PayloadTypeV:       "V",
	PayloadTypeTSi:     "TSi",
	PayloadTypeTSr:     "TSr",
	PayloadTypeSK:      "SK",
	PayloadTypeCP:      "CP",
	PayloadTypeEAP:     "EAP",
	PayloadTypeSKF:     "SKF",
}

func (t PayloadType) String() string {
	if n, ok := payloadTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("PayloadType(%d)", uint8(t))
}

var exchangeTypeNames = map[IkeExchangeType]string{
	IKE_SA_INIT:     "IKE_SA_INIT",
	IKE_AUTH:        "IKE_AUTH",
	CREATE_CHILD_SA: "CREATE_CHILD_SA",
	INFORMATIONAL:   "INFORMATIONAL",
}

func (t IkeExchangeType) String() string {
	if n, ok := exchangeTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("IkeExchangeType(%d)", uint16(t))
}

func (f IkeFlags) String() string {
	s := "["
	if f.IsInitiator() {
		s += "I"
	}
	if f.IsResponse() {
		s += "R"
	}
	return s + "]"
}

var notificationNames = map[NotificationType]string{
	NOTHING_WRONG:                 "NOTHING_WRONG",
	UNSUPPORTED_CRITICAL_PAYLOAD:  "UNSUPPORTED_CRITICAL_PAYLOAD",
	INVALID_IKE_SPI:               "INVALID_IKE_SPI",
	INVALID_MAJOR_VERSION:         "INVALID_MAJOR_VERSION",
	INVALID_SYNTAX:                "INVALID_SYNTAX",
	INVALID_MESSAGE_ID:            "INVALID_MESSAGE_ID",
	INVALID_SPI:                   "INVALID_SPI",
	NO_PROPOSAL_CHOSEN:            "NO_PROPOSAL_CHOSEN",
	INVALID_KE_PAYLOAD:            "INVALID_KE_PAYLOAD",
	AUTHENTICATION_FAILED:         "AUTHENTICATION_FAILED",
	SINGLE_PAIR_REQUIRED:          "SINGLE_PAIR_REQUIRED",
	NO_ADDITIONAL_SAS:             "NO_ADDITIONAL_SAS",
	INTERNAL_ADDRESS_FAILURE:      "INTERNAL_ADDRESS_FAILURE",
	FAILED_CP_REQUIRED:            "FAILED_CP_REQUIRED",
	TS_UNACCEPTABLE:               "TS_UNACCEPTABLE",
	INVALID_SELECTORS:             "INVALID_SELECTORS",
	TEMPORARY_FAILURE:             "TEMPORARY_FAILURE",
	CHILD_SA_NOT_FOUND:            "CHILD_SA_NOT_FOUND",
	INITIAL_CONTACT:               "INITIAL_CONTACT",
	SET_WINDOW_SIZE:               "SET_WINDOW_SIZE",
	IPCOMP_SUPPORTED:              "IPCOMP_SUPPORTED",
	NAT_DETECTION_SOURCE_IP:       "NAT_DETECTION_SOURCE_IP",
	NAT_DETECTION_DESTINATION_IP:  "NAT_DETECTION_DESTINATION_IP",
	COOKIE:                        "COOKIE",
	USE_TRANSPORT_MODE:            "USE_TRANSPORT_MODE",
	REKEY_SA:                      "REKEY_SA",
	AUTH_LIFETIME:                 "AUTH_LIFETIME",
	IKEV2_FRAGMENTATION_SUPPORTED: "IKEV2_FRAGMENTATION_SUPPORTED",
	SIGNATURE_HASH_ALGORITHMS:     "SIGNATURE_HASH_ALGORITHMS",
}

func (t NotificationType) String() string {
	if n, ok := notificationNames[t]; ok {
		return n
	}
	return fmt.Sprintf("NotificationType(%d)", uint16(t))
}
