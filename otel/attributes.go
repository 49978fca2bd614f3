package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrPollStatus   = attribute.Key("spout.poll.status")
	AttrCommitStatus = attribute.Key("spout.commit.status")
	AttrStream       = attribute.Key("spout.stream")
	AttrFailReason   = attribute.Key("spout.fail.reason")
)

// Status values
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusInterrupted = "interrupted"
)

// Fail reasons
const (
	FailReasonHost      = "host"
	FailReasonTranslate = "translate"
)
