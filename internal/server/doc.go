// Package server implements the live routing side of NexChat.
//
// A Hub owns every live Connection. It keeps a ConnectionRegistry (user to
// connections), a RoomTable (room to subscribed connections) and a
// TypingTracker, and serializes all mutations of them through its run loop.
// The Router computes explicit target sets from those structures and delivers
// events to connection send queues. HTTP handlers expose the websocket
// endpoint together with the REST surface of the persistence collaborator.
package server
