package kernel

import (
	"github.com/codefionn/shkernel/internal/session"
	"github.com/codefionn/shkernel/internal/wire"
)

// attach makes sess the current session and publishes its comm events as
// comm_msg on IOPub, linked to the request that caused them. Events from a
// session that has been replaced are dropped.
func (k *Kernel) attach(sess Session) {
	k.sessMu.Lock()
	k.sess = sess
	k.sessMu.Unlock()

	sess.Subscribe(func(ev session.CommEvent) {
		if k.Session() != sess {
			k.log.Debug("dropping comm event for %s from a replaced session", ev.CommID)
			return
		}
		data := ev.Data
		if data == nil {
			data = map[string]interface{}{}
		}
		if err := k.broadcast(ev.Parent, wire.TypeCommMsg, wire.CommMsg{CommID: ev.CommID, Data: data}); err != nil {
			k.log.Warn("publishing comm_msg for %s: %v", ev.CommID, err)
		}
	})
}
