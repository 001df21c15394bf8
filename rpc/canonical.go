package rpc

// canonicalBatchMessage rebuilds the exact byte sequence the OCW signed: the
// minified JSON array of the account ids in request order. Ids are hex
// strings, so no JSON escaping applies and direct concatenation is safe. The
// empty list is rejected upstream, so a zero-length input never reaches here
// in a verification path.
func canonicalBatchMessage(ids []string) []byte {
	size := 2
	for _, id := range ids {
		size += len(id) + 3
	}
	msg := make([]byte, 0, size)
	msg = append(msg, '[')
	for i, id := range ids {
		if i > 0 {
			msg = append(msg, ',')
		}
		msg = append(msg, '"')
		msg = append(msg, id...)
		msg = append(msg, '"')
	}
	msg = append(msg, ']')
	return msg
}
