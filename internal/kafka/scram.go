package kafka

import (
	"crypto/sha256"
	"crypto/sha512"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

// scramMechanisms maps the configured SASL mechanism name to the sarama
// mechanism and the hash the conversation runs with.
var scramMechanisms = map[string]struct {
	mechanism sarama.SASLMechanism
	hash      scram.HashGeneratorFcn
}{
	"SCRAM-SHA-256": {sarama.SASLTypeSCRAMSHA256, sha256.New},
	"SCRAM-SHA-512": {sarama.SASLTypeSCRAMSHA512, sha512.New},
}

// scramClient drives one SCRAM handshake for sarama.
type scramClient struct {
	hash scram.HashGeneratorFcn
	conv *scram.ClientConversation
}

var _ sarama.SCRAMClient = (*scramClient)(nil)

func newSCRAMClientFunc(hash scram.HashGeneratorFcn) func() sarama.SCRAMClient {
	return func() sarama.SCRAMClient {
		return &scramClient{hash: hash}
	}
}

func (c *scramClient) Begin(user, password, authzID string) error {
	client, err := c.hash.NewClient(user, password, authzID)
	if err != nil {
		return err
	}
	c.conv = client.NewConversation()
	return nil
}

func (c *scramClient) Step(challenge string) (string, error) {
	return c.conv.Step(challenge)
}

func (c *scramClient) Done() bool {
	return c.conv.Done()
}

// enableSCRAM wires the named SCRAM mechanism into conf. It reports false
// when name is not a SCRAM mechanism.
func enableSCRAM(conf *sarama.Config, name string) bool {
	m, ok := scramMechanisms[name]
	if !ok {
		return false
	}
	conf.Net.SASL.Mechanism = m.mechanism
	conf.Net.SASL.SCRAMClientGeneratorFunc = newSCRAMClientFunc(m.hash)
	return true
}
