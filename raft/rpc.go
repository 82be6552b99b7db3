package raft

import (
	"bytes"
	"encoding/gob"

	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/pkg/errors"
)

const (
	rpcMethodRequestVote   = "rv"
	rpcMethodAppendEntries = "ae"
)

func init() {
	gob.Register(requestVoteReq{})
	gob.Register(requestVoteRes{})
	gob.Register(appendEntriesReq{})
	gob.Register(appendEntriesRes{})
}

type requestVoteReq struct {
	Term        uint64
	CandidateID rpccore.NodeID
}

type requestVoteRes struct {
	Term        uint64
	VoteGranted bool
}

type appendEntriesReq struct {
	Term         uint64
	LeaderID     rpccore.NodeID
	LeaderCommit uint64
}

type appendEntriesRes struct {
	Term    uint64
	Success bool
}

// requestVote takes target node ID and requestVoteReq as arguments and
// returns a requestVoteRes pointer, nil if the call failed.
func (p *Peer) requestVote(target rpccore.NodeID, arg requestVoteReq) *requestVoteRes {
	var res requestVoteRes
	if p.callRPCAndLogError(target, rpcMethodRequestVote, arg, &res) == nil {
		return &res
	}
	return nil
}

// appendEntries takes target node ID and appendEntriesReq as arguments and
// returns an appendEntriesRes pointer, nil if the call failed.
func (p *Peer) appendEntries(target rpccore.NodeID, arg appendEntriesReq) *appendEntriesRes {
	var res appendEntriesRes
	if p.callRPCAndLogError(target, rpcMethodAppendEntries, arg, &res) == nil {
		return &res
	}
	return nil
}

func (p *Peer) callRPCAndLogError(target rpccore.NodeID, method string, req, res interface{}) error {
	err := p.callRPC(target, method, req, res)
	if err != nil {
		p.logger.Tracef("RPC call failed. target: %v, method: %v, err: %v", target, method, err)
	}
	return err
}

func (p *Peer) callRPC(target rpccore.NodeID, method string, req, res interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(req); err != nil {
		return errors.WithStack(err)
	}
	resData, err := p.node.SendRawRequest(target, method, buf.Bytes())
	if err != nil {
		return err
	}
	if err := gob.NewDecoder(bytes.NewReader(resData)).Decode(res); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// dispatch is the one raw-request callback registered on the node. It
// multiplexes by method name the way raft-lite's handleRPCCall does,
// falling through to Fallback (typically the forwarder) for anything
// that isn't "rv"/"ae".
func (p *Peer) dispatch(source rpccore.NodeID, method string, data []byte) ([]byte, error) {
	switch method {
	case rpcMethodRequestVote:
		var req requestVoteReq
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&req); err != nil {
			return nil, errors.WithStack(err)
		}
		p.mu.Lock()
		res := p.handleRequestVote(req)
		p.mu.Unlock()
		var buf bytes.Buffer
		err := gob.NewEncoder(&buf).Encode(res)
		return buf.Bytes(), errors.WithStack(err)
	case rpcMethodAppendEntries:
		var req appendEntriesReq
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&req); err != nil {
			return nil, errors.WithStack(err)
		}
		p.mu.Lock()
		res := p.handleAppendEntries(req)
		p.mu.Unlock()
		var buf bytes.Buffer
		err := gob.NewEncoder(&buf).Encode(res)
		return buf.Bytes(), errors.WithStack(err)
	default:
		if p.Fallback != nil {
			return p.Fallback(source, method, data)
		}
		return nil, errors.Errorf("raft: unsupported method %q", method)
	}
}

func (p *Peer) handleRequestVote(req requestVoteReq) requestVoteRes {
	if req.Term < p.currentTerm {
		return requestVoteRes{Term: p.currentTerm, VoteGranted: false}
	}
	if req.Term > p.currentTerm {
		p.updateTerm(req.Term)
		p.changeState(Follower)
	}
	if p.votedFor != nil && *p.votedFor != req.CandidateID {
		return requestVoteRes{Term: p.currentTerm, VoteGranted: false}
	}
	p.votedFor = &req.CandidateID
	p.resetElectionTimer()
	return requestVoteRes{Term: p.currentTerm, VoteGranted: true}
}

func (p *Peer) handleAppendEntries(req appendEntriesReq) appendEntriesRes {
	if req.Term < p.currentTerm {
		return appendEntriesRes{Term: p.currentTerm, Success: false}
	}
	p.updateTerm(req.Term)
	p.changeState(Follower)
	leader := req.LeaderID
	p.leaderID = &leader
	p.resetElectionTimer()
	if req.LeaderCommit > p.commitIndex {
		p.commitIndex = req.LeaderCommit
	}
	return appendEntriesRes{Term: p.currentTerm, Success: true}
}
