// Package auth 保存 agent 的凭据，并派生传输层使用的 login/password。
package auth

import "fmt"

// Auth agent 凭据，纯值对象，不做任何 I/O
type Auth struct {
	clientID int64
	agentID  int64
	token    string
}

// New 创建凭据
func New(clientID, agentID int64, token string) Auth {
	return Auth{clientID: clientID, agentID: agentID, token: token}
}

// Login 形如 "{client_id}_{agent_id}"
func (a Auth) Login() string {
	return fmt.Sprintf("%d_%d", a.clientID, a.agentID)
}

// Password agent token 原样返回
func (a Auth) Password() string {
	return a.token
}

func (a Auth) ClientID() int64 {
	return a.clientID
}

func (a Auth) AgentID() int64 {
	return a.agentID
}

// String 不输出 token，可以直接写入日志
func (a Auth) String() string {
	return fmt.Sprintf("auth{login=%s}", a.Login())
}
