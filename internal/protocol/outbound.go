package protocol

// Envelope is an outbound client-to-server message.
type Envelope struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// JoinTraining subscribes to a training session's room.
func JoinTraining(sessionID string) Envelope {
	return Envelope{Event: "join_training", SessionID: sessionID}
}

// LeaveTraining unsubscribes from a training session's room.
func LeaveTraining(sessionID string) Envelope {
	return Envelope{Event: "leave_training", SessionID: sessionID}
}

// JoinPrediction subscribes to a prediction request's room.
func JoinPrediction(requestID string) Envelope {
	return Envelope{Event: "join_prediction", RequestID: requestID}
}

// LeavePrediction unsubscribes from a prediction request's room.
func LeavePrediction(requestID string) Envelope {
	return Envelope{Event: "leave_prediction", RequestID: requestID}
}
