package config

type WorkerKeyStruct struct {
	PersistAuditQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAuditQueue: "proctor_audit_queue",
}
