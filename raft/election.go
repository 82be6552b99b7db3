package raft

import (
	"time"

	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/lmarchetti/kvrpc/utils"
)

func (p *Peer) resetElectionTimer() {
	p.resetAt = time.Now()
	p.timeout = utils.RandomTime(electionTimeoutMin, electionTimeoutMax)
}

// runTimer drives both the election timeout (as follower/candidate) and the
// heartbeat cadence (as leader). raft-lite leaves this as "checkout Ticker".
func (p *Peer) runTimer() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.state == Leader {
				p.mu.Unlock()
				p.sendHeartbeats()
				time.Sleep(heartbeatInterval)
				continue
			}
			elapsed := time.Since(p.resetAt)
			timeout := p.timeout
			p.mu.Unlock()
			if elapsed >= timeout {
				p.startElection()
			}
		}
	}
}

// startElection converts this node to Candidate, votes for itself, and
// requests votes from every peer in parallel. raft-lite leaves this as a
// no-op stub.
func (p *Peer) startElection() {
	p.mu.Lock()
	if p.dead {
		p.mu.Unlock()
		return
	}
	p.currentTerm++
	p.changeState(Candidate)
	self := p.id
	p.votedFor = &self
	p.leaderID = nil
	term := p.currentTerm
	peers := append([]rpccore.NodeID{}, p.peers...)
	p.resetElectionTimer()
	p.mu.Unlock()

	votes := 1
	total := len(peers) + 1
	votesCh := make(chan bool, len(peers))
	for _, target := range peers {
		target := target
		go func() {
			res := p.requestVote(target, requestVoteReq{Term: term, CandidateID: self})
			votesCh <- res != nil && res.VoteGranted
		}()
	}
	for range peers {
		if <-votesCh {
			votes++
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead || p.state != Candidate || p.currentTerm != term {
		return
	}
	if 2*votes > total {
		p.changeState(Leader)
		leader := p.id
		p.leaderID = &leader
		for _, target := range peers {
			p.nextIndex[target] = p.commitIndex + 1
			p.matchIndex[target] = 0
		}
		p.logger.Infof("%v: elected leader for term %v with %v/%v votes", p.id, term, votes, total)
	}
}

// sendHeartbeats issues an empty appendEntries RPC to every peer. raft-lite
// leaves this as a no-op stub.
func (p *Peer) sendHeartbeats() {
	p.mu.Lock()
	if p.state != Leader || p.dead {
		p.mu.Unlock()
		return
	}
	term := p.currentTerm
	self := p.id
	commitIndex := p.commitIndex
	peers := append([]rpccore.NodeID{}, p.peers...)
	p.mu.Unlock()

	for _, target := range peers {
		target := target
		go func() {
			res := p.appendEntries(target, appendEntriesReq{Term: term, LeaderID: self, LeaderCommit: commitIndex})
			if res == nil {
				return
			}
			p.mu.Lock()
			defer p.mu.Unlock()
			if res.Term > p.currentTerm {
				p.updateTerm(res.Term)
				p.changeState(Follower)
				p.leaderID = nil
			}
		}()
	}
}
