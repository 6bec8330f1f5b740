/*
Package markov builds and samples from variable-order Markov chain models of
word sequences.

A Model is trained from plain text: the corpus is split into sentences, every
sentence is padded with START and END sentinels, and each run of `order`
tokens is counted as a context for the token that follows it. Generate then
walks the chain from the all-START context with weighted random choice until
it draws END. GenerateFrom continues a given seed, and GenerateStream
delivers tokens over a channel as they are chosen.

Models persist as a compact JSON document (see Serialize) so that any
key/value store can hold them; Restore rebuilds a model from that form.
*/
package markov
