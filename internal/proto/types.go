// Package proto holds the wire message shapes of the PICCOLO inter-component
// protocol (spec §6). These are plain Go types rather than protoc-generated
// code: the gRPC service wrappers that marshal them are thin forwarders and
// are treated as external collaborators, so only the message shapes are
// maintained here by hand; the service interfaces live in internal/rpc.
package proto

// ResourceType identifies the kind of resource a StateChange targets.
type ResourceType int32

const (
	ResourceTypeUnspecified ResourceType = iota
	ResourceTypeScenario
	ResourceTypePackage
	ResourceTypeModel
)

// String renders the resource type the way audit log lines and RPC error
// details reference it. Unknown values, including out-of-range ints, render
// as "Unknown" rather than panicking.
func (r ResourceType) String() string {
	switch r {
	case ResourceTypeScenario:
		return "Scenario"
	case ResourceTypePackage:
		return "Package"
	case ResourceTypeModel:
		return "Model"
	default:
		return "Unknown"
	}
}

// ErrorCode is the four-valued error envelope used uniformly across
// state-change responses (spec §6).
type ErrorCode int32

const (
	ErrorCodeSuccess ErrorCode = iota
	ErrorCodeInvalidRequest
	ErrorCodeResourceUnavailable
	ErrorCodeInternalError
)

func (e ErrorCode) String() string {
	switch e {
	case ErrorCodeSuccess:
		return "Success"
	case ErrorCodeInvalidRequest:
		return "InvalidRequest"
	case ErrorCodeResourceUnavailable:
		return "ResourceUnavailable"
	case ErrorCodeInternalError:
		return "InternalError"
	default:
		return "InternalError"
	}
}

// StateChange is the core event ingested by the Transition Engine (C8).
type StateChange struct {
	ResourceType  ResourceType
	ResourceName  string
	CurrentState  string
	TargetState   string
	TransitionID  string
	TimestampNs   int64
	Source        string
}

// TransitionResponse is the audit-stamped response to every StateChange
// (the C12 envelope: message, transition_id, timestamp_ns, error_code,
// error_details).
type TransitionResponse struct {
	Message      string
	TransitionID string
	TimestampNs  int64
	ErrorCode    ErrorCode
	ErrorDetails string
}

// ContainerInfo mirrors the node agent's raw observation of one container.
type ContainerInfo struct {
	ID         string
	Names      []string
	Image      string
	State      map[string]string
	Config     map[string]string
	Annotation map[string]string
	Stats      map[string]string
}

// ContainerList is the periodic observation batch C10 forwards to C8.
type ContainerList struct {
	Containers []ContainerInfo
}

// ReconcileRequest drives the reconcile_do path (spec §4.9 step 4).
type ReconcileRequest struct {
	ScenarioName string
	Current      string
	Desired      string
}

// ReconcileResponse is the ack for a reconcile/workload request.
type ReconcileResponse struct {
	Status int32
	Desc   string
}

// WorkloadCommand is the Action-Controller -> Node-Agent command envelope
// (spec §4.10).
type WorkloadCommand struct {
	Command   string // Create | Start | Stop | Restart
	ModelName string
	Pod       *PodSpec
}

// PodSpec is the Model's pod-like shape (spec §3).
type PodSpec struct {
	ModelName                     string
	HostNetwork                   bool
	Containers                    []ContainerSpec
	Volumes                       map[string]string // name -> hostPath
	TerminationGracePeriodSeconds int32
}

// ContainerSpec is one container within a PodSpec.
type ContainerSpec struct {
	Name         string
	Image        string
	Ports        []string
	Env          map[string]string
	Command      []string
	VolumeMounts []string // volume name referenced
}

// FaultInfo is the real-time scheduler's deadline-miss notification (C11).
type FaultInfo struct {
	ModelName   string
	Description string
	TimestampNs int64
}

// FaultResponse is always status=0 per spec §4.11.
type FaultResponse struct {
	Status int32
}

// SchedPolicy mirrors Timpani's scheduling policy enum; PICCOLO only ever
// emits Fifo per spec §4.9.
type SchedPolicy int32

const SchedPolicyFifo SchedPolicy = 0

// TaskInfo is one real-time task descriptor posted to Timpani.
type TaskInfo struct {
	Name        string
	Priority    int32
	Policy      SchedPolicy
	CPUAffinity uint64
	Period      int64
	ReleaseTime int64
	Runtime     int64
	Deadline    int64
	NodeID      string
	MaxDmiss    int32
}

// SchedInfo is the Timpani sink's request shape (spec §6).
type SchedInfo struct {
	WorkloadID string
	Tasks      []TaskInfo
}

// NodeInfo is the cluster/nodes/{hostname} record (spec §6).
type NodeInfo struct {
	NodeRole int32 `json:"node_role"`
}

// NodeRoleNodeAgent is the only supported node_role value (spec §4.9.a).
const NodeRoleNodeAgent = 2
