package trace

// Namespace classifies the kind of workload that produced a transaction.
type Namespace string

// The namespaces recognized by the built-in adapters. Custom adapters can
// define their own.
const (
	NamespaceWebRequest    Namespace = "web_request"
	NamespaceBackgroundJob Namespace = "background_job"
	NamespaceChannel       Namespace = "channel"
)
