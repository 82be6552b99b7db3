package frontend

import (
	"github.com/lmarchetti/kvrpc/jsonrpc"
	"github.com/lmarchetti/kvrpc/kvstore"
	"github.com/lmarchetti/kvrpc/signedreq"
	"github.com/lmarchetti/kvrpc/verifier"
)

// validCaller resolves callerCert to a CallerId, the Go name for
// valid_caller (spec.md §4.2). ok is false for both of the source's two
// "no caller" outcomes — no certificates map configured, or the cert
// bytes not found — since both are handled identically by process
// (INVALID_CALLER_ID); the certsDisabled flag and an empty certificate
// string cover "no map configured" and "no caller presented"
// respectively.
func (f *Frontend) validCaller(tx *kvstore.Tx, callerCert []byte) (kvstore.CallerId, bool) {
	f.mu.Lock()
	disabled := f.certsDisabled
	f.mu.Unlock()

	if disabled {
		return kvstore.InvalidID, false
	}
	if len(callerCert) == 0 {
		return kvstore.InvalidID, false
	}
	id, ok := kvstore.Certs(tx).Get(string(callerCert))
	if !ok {
		return kvstore.InvalidID, false
	}
	return id, true
}

func (f *Frontend) verifierFor(callerID kvstore.CallerId, callerCert []byte) (verifier.Verifier, error) {
	f.mu.Lock()
	cache := f.verifiers
	f.mu.Unlock()
	if cache == nil {
		cache = verifier.NewCache(verifier.NewEd25519Factory())
		f.mu.Lock()
		f.verifiers = cache
		f.mu.Unlock()
	}
	return cache.GetOrCreate(verifier.CallerId(callerID), callerCert)
}

// verifyClientSignature implements spec.md §4.3. outerObj is the decoded
// top-level envelope; present only when jsonrpc.IsSigned(outerObj) is
// true. forwarded requests skip step 2 (the originating follower already
// verified). Returns the SignedReq to persist and whether verification
// (when required) succeeded. Storing the result into ClientSignatures is
// the caller's job (storeSignature), not this function's: verification
// has to happen before the executor's retry loop even opens a Tx, but the
// write must land in whichever Tx that loop actually commits.
//
// SignedReq.Req is packed from the inner "req" value alone, not the full
// outer {sig, req, md} envelope: the client signs the inner request before
// wrapping it in {sig, req, md}, so packing the outer envelope would fold
// the signature itself into the bytes being verified and no signature
// could ever check out. Matches clientsignatures.h's
// sr.req = to_msgpack(j["req"]).
func (f *Frontend) verifyClientSignature(
	callerID kvstore.CallerId,
	callerCert []byte,
	rawOuter []byte,
	outerObj map[string]interface{},
	forwarded bool,
) (*signedreq.SignedReq, bool) {
	sigBytes, err := signedreq.ExtractBytes(outerObj[jsonrpc.FieldSig])
	if err != nil {
		return nil, false
	}
	md, _ := outerObj[jsonrpc.FieldMD].(string)

	packedReq, err := jsonrpc.PackValue(outerObj[jsonrpc.FieldReq], jsonrpc.PackMsgPack)
	if err != nil {
		return nil, false
	}

	signed := &signedreq.SignedReq{
		Sig:    sigBytes,
		Req:    packedReq,
		RawReq: rawOuter,
		MD:     signedreq.HashAlg(md),
	}

	if !forwarded {
		v, err := f.verifierFor(callerID, callerCert)
		if err != nil || !v.Verify(signed.Req, signed.Sig) {
			return nil, false
		}
	}

	return signed, true
}

// storeSignature writes signed into ClientSignatures[callerID] on tx, the
// same Tx the executor's retry loop is about to commit, so the write lands
// atomically with the handler's own writes (spec.md §4.3 step 5). Called
// once per commit attempt: a conflicting attempt re-does this write against
// the fresh Tx it retries with.
func (f *Frontend) storeSignature(tx *kvstore.Tx, callerID kvstore.CallerId, signed *signedreq.SignedReq) {
	stored := *signed
	f.mu.Lock()
	disableStoring := f.requestStoringDisabled
	f.mu.Unlock()
	if disableStoring {
		stored.Req = nil
	}
	kvstore.ClientSignatures(tx).Put(callerID, stored)
}
