// Package session is the boundary to the console's session context. The
// only thing the sync engine needs from it is the active restaurant
// identifier, which scopes the live channel and the persisted snapshot.
package session

import "errors"

var ErrNoRestaurant = errors.New("session has no active restaurant")

type Session struct {
	RestaurantID string
}

func New(restaurantID string) (Session, error) {
	if restaurantID == "" {
		return Session{}, ErrNoRestaurant
	}
	return Session{RestaurantID: restaurantID}, nil
}

// OrderChannel returns the restaurant-scoped live-channel name.
func (s Session) OrderChannel(prefix string) string {
	return prefix + "." + s.RestaurantID
}
