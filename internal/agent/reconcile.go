package agent

// Reconcile merges a client-supplied message list with the persisted
// transcript before a turn starts. The persisted copy is authoritative: once
// a message id has round-tripped, the server's version of history wins and
// client copies are discarded. Only a genuinely new trailing message is
// appended.
func Reconcile(persisted *Transcript, client []ChatMessage) []ChatMessage {
	if persisted == nil || len(persisted.Messages) == 0 {
		return client
	}
	base := persisted.Messages
	if len(client) == 0 {
		return base
	}

	last := client[len(client)-1]
	for _, msg := range base {
		if msg.ID == last.ID {
			return base
		}
	}
	return append(append([]ChatMessage(nil), base...), last)
}
