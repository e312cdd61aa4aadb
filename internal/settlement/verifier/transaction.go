package verifier

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Transaction is the subset of a jsonParsed getTransaction result the verifier reads.
type Transaction struct {
	Slot        uint64              `json:"slot"`
	Meta        *TransactionMeta    `json:"meta"`
	Transaction TransactionEnvelope `json:"transaction"`
}

type TransactionMeta struct {
	Err               json.RawMessage       `json:"err"`
	InnerInstructions []InnerInstructionSet `json:"innerInstructions"`
}

type TransactionEnvelope struct {
	Signatures []string `json:"signatures"`
	Message    Message  `json:"message"`
}

type Message struct {
	Instructions []Instruction `json:"instructions"`
}

type InnerInstructionSet struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

// Instruction is a parsed instruction. Parsed is an object for the token
// programs and a plain string for the memo program.
type Instruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
}

// Failed reports whether the transaction executed with an error.
func (t *Transaction) Failed() bool {
	if t.Meta == nil {
		return false
	}
	err := bytes.TrimSpace(t.Meta.Err)
	return len(err) > 0 && !bytes.Equal(err, []byte("null"))
}

// Instructions returns top-level instructions followed by every inner instruction.
func (t *Transaction) Instructions() []Instruction {
	all := append([]Instruction(nil), t.Transaction.Message.Instructions...)
	if t.Meta != nil {
		for _, set := range t.Meta.InnerInstructions {
			all = append(all, set.Instructions...)
		}
	}
	return all
}

const (
	transferType        = "transfer"
	transferCheckedType = "transferChecked"
	memoProgram         = "spl-memo"
)

type parsedTransfer struct {
	Type string `json:"type"`
	Info struct {
		Amount      string `json:"amount"`
		Destination string `json:"destination"`
		Source      string `json:"source"`
		Mint        string `json:"mint"`
		TokenAmount struct {
			Amount string `json:"amount"`
		} `json:"tokenAmount"`
	} `json:"info"`
}

// transfer is a token transfer extracted from an instruction.
type transfer struct {
	checked     bool
	amount      uint64
	destination string
	mint        string
}

// asTransfer extracts a token transfer. Instructions without a token amount,
// such as system program lamport transfers, are not transfers here.
func (in Instruction) asTransfer() (transfer, bool) {
	if len(in.Parsed) == 0 || in.Parsed[0] != '{' {
		return transfer{}, false
	}

	var p parsedTransfer
	if err := json.Unmarshal(in.Parsed, &p); err != nil {
		return transfer{}, false
	}

	var raw string
	switch p.Type {
	case transferType:
		raw = p.Info.Amount
	case transferCheckedType:
		raw = p.Info.TokenAmount.Amount
	default:
		return transfer{}, false
	}

	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return transfer{}, false
	}

	return transfer{
		checked:     p.Type == transferCheckedType,
		amount:      amount,
		destination: p.Info.Destination,
		mint:        p.Info.Mint,
	}, true
}

// memoText returns the memo carried by a memo program instruction.
func (in Instruction) memoText() (string, bool) {
	if in.Program != memoProgram || len(in.Parsed) == 0 {
		return "", false
	}
	var memo string
	if err := json.Unmarshal(in.Parsed, &memo); err != nil {
		return "", false
	}
	return memo, true
}
