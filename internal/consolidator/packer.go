package consolidator

// pack fills every drive with free space, largest total first, by pulling
// data from the other drives in ascending position order. A drive that has
// acted as a receiver is never drained afterwards. Input must be validated.
func pack(v *indexedView) *MoveLog {
	log := &MoveLog{}
	receivers := make([]bool, v.len())

	for _, receiver := range v.orderedByTotalDescending() {
		if v.free(receiver) <= 0 {
			continue
		}
		receivers[receiver] = true

	senders:
		for sender := 0; sender < v.len(); sender++ {
			if sender == receiver || receivers[sender] || v.used[sender] <= 0 {
				continue
			}

			free := v.free(receiver)
			available := v.used[sender]
			switch {
			case available == free:
				transfer(v, log, sender, receiver, available)
				break senders
			case available < free:
				transfer(v, log, sender, receiver, available)
			default:
				transfer(v, log, sender, receiver, free)
				break senders
			}
		}
	}

	return log
}

func transfer(v *indexedView, log *MoveLog, sender, receiver, amount int) {
	v.used[receiver] += amount
	v.used[sender] -= amount
	if err := log.Append(&Move{Source: sender, Amount: amount, Target: receiver}); err != nil {
		panic(err)
	}
}
