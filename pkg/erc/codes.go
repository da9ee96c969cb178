package erc

// Device-level codes reported by the cable firmware.
const (
	NoError              Code = 0
	NotSupported         Code = 1
	TransferCancelled    Code = 2
	CapabilityConflict   Code = 3
	CapabilityNotEnabled Code = 4
	EppAddressTimeout    Code = 5
	EppDataTimeout       Code = 6
	DataSndLess          Code = 7
	DataRcvLess          Code = 8
	DataRcvMore          Code = 9
	DataSndLessRcvLess   Code = 10
	DataSndLessRcvMore   Code = 11
	InvalidPort          Code = 12
	BadParameter         Code = 13
)

// Errors made by the caller of the cable API.
const (
	AlreadyOpened    Code = 1024
	InvalidHif       Code = 1025
	InvalidParameter Code = 1026
	TransferPending  Code = 1031
	APILockTimeout   Code = 1032
	PortConflict     Code = 1033
)

// Errors outside the caller's control.
const (
	ConnectionFailed      Code = 3072
	ControlTransferFailed Code = 3075
	CmdSendFailed         Code = 3076
	StsReceiveFailed      Code = 3077
	InsufficientResources Code = 3078
	InvalidTFP            Code = 3079
	InternalError         Code = 3080
	TooManyOpenedDevices  Code = 3081
	ConfigFileError       Code = 3082
	DeviceNotConnected    Code = 3083
	EnumNotFree           Code = 3084
	EnumFreeFail          Code = 3085
	InvalidDevice         Code = 3086
	DeviceBusy            Code = 3087
)

// Codes from the port communication library.
const (
	ConnReject            Code = 3001
	ConnType              Code = 3002
	ConnNoMode            Code = 3003
	InvParam              Code = 3004
	InvCmd                Code = 3005
	Unknown               Code = 3006
	JtagConflict          Code = 3007
	NotImp                Code = 3008
	NoMem                 Code = 3009
	Timeout               Code = 3010
	Conflict              Code = 3011
	BadPacket             Code = 3012
	InvOption             Code = 3013
	AlreadyCon            Code = 3014
	Connected             Code = 3101
	NotInit               Code = 3102
	CantConnect           Code = 3103
	AlreadyConnect        Code = 3104
	SendError             Code = 3105
	RcvError              Code = 3106
	Abort                 Code = 3107
	TimeOut               Code = 3108
	OutOfOrder            Code = 3109
	ExtraData             Code = 3110
	MissingData           Code = 3111
	TridNotFound          Code = 3201
	NotComplete           Code = 3202
	NotConnected          Code = 3203
	WrongMode             Code = 3204
	WrongVersion          Code = 3205
	DvcTableDne           Code = 3301
	DvcTableCorrupt       Code = 3302
	DvcDne                Code = 3303
	DpcutilInitFail       Code = 3304
	UnknownErr            Code = 3305
	DvcTableOpen          Code = 3306
	RegError              Code = 3307
	NotifyRegFull         Code = 3308
	NotifyNotFound        Code = 3309
	OldDriverNewFw        Code = 3310
	InvHandle             Code = 3311
	InterfaceNotSupported Code = 3312
)

var builtin = []Record{
	{NoError, "ercNoError", "No error occurred", CategoryNone},

	{NotSupported, "ercNotSupported", "Capability or function not supported by the device", CategoryDevice},
	{TransferCancelled, "ercTransferCancelled", "The transfer was cancelled or a timeout occurred", CategoryDevice},
	{CapabilityConflict, "ercCapabilityConflict", "Tried to enable capabilities that use shared resources", CategoryDevice},
	{CapabilityNotEnabled, "ercCapabilityNotEnabled", "The protocol is not enabled", CategoryDevice},
	{EppAddressTimeout, "ercEppAddressTimeout", "EPP address strobe timeout", CategoryDevice},
	{EppDataTimeout, "ercEppDataTimeout", "EPP data strobe timeout", CategoryDevice},
	{DataSndLess, "ercDataSndLess", "Data send failed or peripheral did not receive all the sent data", CategoryDevice},
	{DataRcvLess, "ercDataRcvLess", "Data receive failed or peripheral sent less data", CategoryDevice},
	{DataRcvMore, "ercDataRcvMore", "Peripheral sent more data", CategoryDevice},
	{DataSndLessRcvLess, "ercDataSndLessRcvLess", "Data send failed and peripheral sent less data", CategoryDevice},
	{DataSndLessRcvMore, "ercDataSndLessRcvMore", "Data send failed and peripheral sent more data", CategoryDevice},
	{InvalidPort, "ercInvalidPort", "Attempt to enable port when another port is already enabled", CategoryDevice},
	{BadParameter, "ercBadParameter", "Command parameter out of range", CategoryDevice},

	{AlreadyOpened, "ercAlreadyOpened", "Device already opened", CategoryUser},
	{InvalidHif, "ercInvalidHif", "Invalid interface handle provided, open the device first", CategoryUser},
	{InvalidParameter, "ercInvalidParameter", "Invalid parameter sent in API call", CategoryUser},
	{TransferPending, "ercTransferPending", "The last overlapped call has not finished", CategoryUser},
	{APILockTimeout, "ercApiLockTimeout", "API waiting on pending API timed out", CategoryUser},
	{PortConflict, "ercPortConflict", "Attempt to enable port when another port is already enabled", CategoryUser},

	{ConnectionFailed, "ercConnectionFailed", "No hardware connected or connection failed", CategorySystem},
	{ControlTransferFailed, "ercControlTransferFailed", "Control transfer failed", CategorySystem},
	{CmdSendFailed, "ercCmdSendFailed", "Command sending failed", CategorySystem},
	{StsReceiveFailed, "ercStsReceiveFailed", "Status receiving failed", CategorySystem},
	{InsufficientResources, "ercInsufficientResources", "Memory allocation failed, insufficient system resources", CategorySystem},
	{InvalidTFP, "ercInvalidTFP", "Internal protocol error, transfer structure rejected", CategorySystem},
	{InternalError, "ercInternalError", "Internal error", CategorySystem},
	{TooManyOpenedDevices, "ercTooManyOpenedDevices", "Too many opened devices", CategorySystem},
	{ConfigFileError, "ercConfigFileError", "Processing of configuration file failed", CategorySystem},
	{DeviceNotConnected, "ercDeviceNotConnected", "Device not connected", CategorySystem},
	{EnumNotFree, "ercEnumNotFree", "Device enumeration failed because another enumeration is still running", CategorySystem},
	{EnumFreeFail, "ercEnumFreeFail", "Device enumeration list could not be freed", CategorySystem},
	{InvalidDevice, "ercInvalidDevice", "OEM ID check failed", CategorySystem},
	{DeviceBusy, "ercDeviceBusy", "The device is currently claimed by another process", CategorySystem},

	{ConnReject, "ercConnReject", "Connection rejected", CategoryLibrary},
	{ConnType, "ercConnType", "Invalid connection type", CategoryLibrary},
	{ConnNoMode, "ercConnNoMode", "Connection mode not set", CategoryLibrary},
	{InvParam, "ercInvParam", "Invalid parameter", CategoryLibrary},
	{InvCmd, "ercInvCmd", "Invalid command", CategoryLibrary},
	{Unknown, "ercUnknown", "Unknown error", CategoryLibrary},
	{JtagConflict, "ercJtagConflict", "JTAG port conflict", CategoryLibrary},
	{NotImp, "ercNotImp", "Not implemented", CategoryLibrary},
	{NoMem, "ercNoMem", "Out of memory", CategoryLibrary},
	{Timeout, "ercTimeout", "Operation timed out", CategoryLibrary},
	{Conflict, "ercConflict", "Resource conflict", CategoryLibrary},
	{BadPacket, "ercBadPacket", "Malformed packet", CategoryLibrary},
	{InvOption, "ercInvOption", "Invalid option", CategoryLibrary},
	{AlreadyCon, "ercAlreadyCon", "Already connected", CategoryLibrary},
	{Connected, "ercConnected", "Connected", CategoryLibrary},
	{NotInit, "ercNotInit", "Library not initialized", CategoryLibrary},
	{CantConnect, "ercCantConnect", "Cannot connect to device", CategoryLibrary},
	{AlreadyConnect, "ercAlreadyConnect", "Device already connected", CategoryLibrary},
	{SendError, "ercSendError", "Send error", CategoryLibrary},
	{RcvError, "ercRcvError", "Receive error", CategoryLibrary},
	{Abort, "ercAbort", "Transfer aborted", CategoryLibrary},
	{TimeOut, "ercTimeOut", "Transfer timed out", CategoryLibrary},
	{OutOfOrder, "ercOutOfOrder", "Transfer out of order", CategoryLibrary},
	{ExtraData, "ercExtraData", "Extra data received", CategoryLibrary},
	{MissingData, "ercMissingData", "Data missing from transfer", CategoryLibrary},
	{TridNotFound, "ercTridNotFound", "Transaction id not found", CategoryLibrary},
	{NotComplete, "ercNotComplete", "Transaction not complete", CategoryLibrary},
	{NotConnected, "ercNotConnected", "Not connected", CategoryLibrary},
	{WrongMode, "ercWrongMode", "Wrong mode", CategoryLibrary},
	{WrongVersion, "ercWrongVersion", "Wrong version", CategoryLibrary},
	{DvcTableDne, "ercDvctableDne", "Device table does not exist", CategoryLibrary},
	{DvcTableCorrupt, "ercDvctableCorrupt", "Device table is corrupt", CategoryLibrary},
	{DvcDne, "ercDvcDne", "Device does not exist", CategoryLibrary},
	{DpcutilInitFail, "ercDpcutilInitFail", "Port library initialization failed", CategoryLibrary},
	{UnknownErr, "ercUnknownErr", "Unknown error", CategoryLibrary},
	{DvcTableOpen, "ercDvcTableOpen", "Device table already open", CategoryLibrary},
	{RegError, "ercRegError", "Registry error", CategoryLibrary},
	{NotifyRegFull, "ercNotifyRegFull", "Notification registry full", CategoryLibrary},
	{NotifyNotFound, "ercNotifyNotFound", "Notification not found", CategoryLibrary},
	{OldDriverNewFw, "ercOldDriverNewFw", "Driver is older than the device firmware", CategoryLibrary},
	{InvHandle, "ercInvHandle", "Invalid handle", CategoryLibrary},
	{InterfaceNotSupported, "ercInterfaceNotSupported", "Interface not supported", CategoryLibrary},
}
