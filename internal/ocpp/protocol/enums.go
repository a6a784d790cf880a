package protocol

// OCPP protocol versions spoken by stations.
const (
	Version15 = "1.5"
	Version16 = "1.6"
)

// Frame message types.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Device-originated actions handled by this server.
const (
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionStatusNotification = "StatusNotification"
	ActionMeterValues        = "MeterValues"
	ActionAuthorize          = "Authorize"
	ActionStartTransaction   = "StartTransaction"
	ActionStopTransaction    = "StopTransaction"
)

// Server-originated actions.
const (
	ActionRemoteStopTransaction = "RemoteStopTransaction"
)

// Remote command status values.
const (
	RemoteStartStopAccepted = "Accepted"
	RemoteStartStopRejected = "Rejected"
)

// Registration status values returned on BootNotification.
const (
	RegistrationAccepted = "Accepted"
	RegistrationPending  = "Pending"
	RegistrationRejected = "Rejected"
)

// Authorization status values returned in idTagInfo.
const (
	AuthorizationAccepted = "Accepted"
	AuthorizationBlocked  = "Blocked"
	AuthorizationExpired  = "Expired"
	AuthorizationInvalid  = "Invalid"
)

// Connector status values (StatusNotification).
const (
	StatusAvailable     = "Available"
	StatusPreparing     = "Preparing"
	StatusCharging      = "Charging"
	StatusSuspendedEVSE = "SuspendedEVSE"
	StatusSuspendedEV   = "SuspendedEV"
	StatusFinishing     = "Finishing"
	StatusReserved      = "Reserved"
	StatusUnavailable   = "Unavailable"
	StatusFaulted       = "Faulted"
)

// Connector error codes (subset).
const (
	ErrorCodeNoError      = "NoError"
	ErrorCodeOtherError   = "OtherError"
	ErrorCodeGroundFault  = "GroundFailure"
	ErrorCodeOverCurrent  = "OverCurrentFailure"
	ErrorCodePowerMeter   = "PowerMeterFailure"
	ErrorCodeInternal     = "InternalError"
	ErrorCodeConnectorLid = "ConnectorLockFailure"
)

// Sampled value measurands (subset).
const (
	MeasurandEnergyActiveImportRegister = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport          = "Power.Active.Import"
	MeasurandStateOfCharge              = "SoC"
)

// Sampled value reading contexts.
const (
	ContextSamplePeriodic   = "Sample.Periodic"
	ContextSampleClock      = "Sample.Clock"
	ContextTransactionBegin = "Transaction.Begin"
	ContextTransactionEnd   = "Transaction.End"
)

// Sampled value formats.
const (
	FormatRaw        = "Raw"
	FormatSignedData = "SignedData"
)

// Sampled value locations.
const (
	LocationOutlet = "Outlet"
	LocationInlet  = "Inlet"
	LocationBody   = "Body"
	LocationEV     = "EV"
)

// Sampled value units (subset).
const (
	UnitWh      = "Wh"
	UnitKWh     = "kWh"
	UnitW       = "W"
	UnitKW      = "kW"
	UnitPercent = "Percent"
)

// CallError codes.
const (
	CallErrorInternal           = "InternalError"
	CallErrorFormationViolation = "FormationViolation"
	CallErrorSecurityError      = "SecurityError"
	CallErrorGenericError       = "GenericError"
)
